package gazecapture

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeResource struct {
	created  []int
	released []int
	next     int
}

func (f *fakeResource) acquire(t *testing.T, fail bool) (*Guard[int], error) {
	t.Helper()
	return Acquire("fake",
		func() (int, error) {
			if fail {
				return 0, errors.New("create failed")
			}
			f.next++
			f.created = append(f.created, f.next)
			return f.next, nil
		},
		func(h int) error {
			f.released = append(f.released, h)
			return nil
		},
	)
}

func TestGuard_ReleaseAtMostOnce(t *testing.T) {
	res := &fakeResource{}
	g, err := res.acquire(t, false)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	h, err := g.Borrow()
	if err != nil || h != 1 {
		t.Fatalf("Borrow = %d, %v", h, err)
	}

	g.Release()
	g.Release()

	if len(res.released) != 1 {
		t.Fatalf("Expected 1 release, got %d", len(res.released))
	}
	if g.Alive() {
		t.Error("Guard must not be alive after Release")
	}
	if _, err := g.Borrow(); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("Expected ErrHandleReleased, got %v", err)
	}
	t.Logf("✅ Release ran once")
}

func TestGuard_CreateFailureNeverReleases(t *testing.T) {
	res := &fakeResource{}
	g, err := res.acquire(t, true)
	if err == nil {
		t.Fatal("Expected error")
	}
	if g != nil {
		t.Error("Expected nil guard on failure")
	}
	// Release on the nil guard is a no-op.
	g.Release()
	if len(res.released) != 0 {
		t.Errorf("Expected no release, got %d", len(res.released))
	}
}

func TestGuard_Move(t *testing.T) {
	res := &fakeResource{}
	g, _ := res.acquire(t, false)

	moved := g.Move()
	if g.Alive() {
		t.Error("Source must be inert after Move")
	}
	if _, err := g.Borrow(); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("Borrow on moved-from guard: %v", err)
	}
	g.Release()
	if len(res.released) != 0 {
		t.Fatal("Releasing a moved-from guard must not release the handle")
	}

	h, err := moved.Borrow()
	if err != nil || h != 1 {
		t.Fatalf("Borrow on destination = %d, %v", h, err)
	}
	moved.Release()
	moved.Release()
	if len(res.released) != 1 || res.released[0] != 1 {
		t.Errorf("Expected handle 1 released once, got %v", res.released)
	}

	// Moving an inert guard yields another inert guard.
	if g.Move().Alive() {
		t.Error("Move of an inert guard must be inert")
	}
}

func TestGuard_ReleaseFailureIsLogged(t *testing.T) {
	logger, buf := bufferLogger(slog.LevelDebug)

	g, err := Acquire("device",
		func() (int, error) { return 7, nil },
		func(int) error { return errors.New("device busy") },
	)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	g.withLogger(logger)

	g.Release()

	out := buf.String()
	if !strings.Contains(out, "release failed") || !strings.Contains(out, "device busy") {
		t.Errorf("Expected release failure in log, got %q", out)
	}
	if g.Alive() {
		t.Error("A failed release still ends ownership")
	}
}

// Failing at acquisition step k releases exactly the k resources acquired
// before it, newest first, each once.
func TestGuard_DeferredReleaseOnEveryFailurePoint(t *testing.T) {
	const steps = 4

	for k := 0; k <= steps; k++ {
		res := &fakeResource{}

		build := func() error {
			for i := 0; i < steps; i++ {
				g, err := res.acquire(t, i == k)
				if err != nil {
					return err
				}
				defer g.Release()
			}
			return nil
		}

		err := build()
		if k < steps && err == nil {
			t.Fatalf("k=%d: expected failure", k)
		}

		if len(res.created) != k || len(res.released) != k {
			t.Fatalf("k=%d: created %d, released %d",
				k, len(res.created), len(res.released))
		}
		for i, h := range res.released {
			if h != res.created[len(res.created)-1-i] {
				t.Errorf("k=%d: release order %v, created %v", k, res.released, res.created)
				break
			}
		}
	}
	t.Logf("✅ No leak and no double release at any failure point")
}

func TestGuard_Kind(t *testing.T) {
	res := &fakeResource{}
	g, _ := res.acquire(t, false)
	defer g.Release()
	if g.Kind() != "fake" {
		t.Errorf("Kind = %q", g.Kind())
	}
	var nilGuard *Guard[int]
	if nilGuard.Kind() != "" || nilGuard.Alive() {
		t.Error("nil guard must report no kind and not alive")
	}
}
