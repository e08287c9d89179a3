// Package recorder stores captured samples in a local bbolt database.
//
// Layout: one top-level bucket per session ID, holding one nested bucket per
// stream. Keys are the big-endian envelope sequence numbers, values are the
// msgpack records produced by samplebus.Encode.
package recorder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/e7canasta/orion-gaze-capture/internal/samplebus"
)

const (
	// flushSize is the number of buffered envelopes that triggers a write
	flushSize = 128
	// flushInterval bounds how long an envelope stays buffered
	flushInterval = 500 * time.Millisecond
)

// ErrClosed is returned by operations on a closed recorder.
var ErrClosed = errors.New("recorder: closed")

// Recorder appends envelopes of one session to a bbolt file.
type Recorder struct {
	db      *bolt.DB
	session string

	mu      sync.Mutex
	pending []samplebus.Envelope
	written uint64
	closed  bool
}

// Open opens (or creates) the database at path for session.
func Open(path, session string) (*Recorder, error) {
	if session == "" {
		return nil, fmt.Errorf("recorder: empty session id")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(session))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: create session bucket: %w", err)
	}

	slog.Info("recorder: opened", "path", path, "session", session)
	return &Recorder{db: db, session: session}, nil
}

// Write buffers env and flushes when the buffer is full.
func (r *Recorder) Write(env samplebus.Envelope) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.pending = append(r.pending, env)
	full := len(r.pending) >= flushSize
	r.mu.Unlock()

	if full {
		return r.Flush()
	}
	return nil
}

// Flush writes every buffered envelope in one transaction.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	closed := r.closed
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if closed {
		return ErrClosed
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(r.session))
		if root == nil {
			return fmt.Errorf("recorder: session bucket %q missing", r.session)
		}
		for _, env := range batch {
			if env.Sample == nil {
				continue
			}
			stream, err := root.CreateBucketIfNotExists([]byte(env.Sample.Kind().String()))
			if err != nil {
				return err
			}
			data, err := samplebus.Encode(env)
			if err != nil {
				return err
			}
			if err := stream.Put(seqKey(env.Seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recorder: flush %d envelopes: %w", len(batch), err)
	}

	r.mu.Lock()
	r.written += uint64(len(batch))
	r.mu.Unlock()
	return nil
}

// Run records envelopes from ch until it is closed or ctx is done, flushing
// by size and at least every flushInterval.
func (r *Recorder) Run(ctx context.Context, ch <-chan samplebus.Envelope) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if err := r.Flush(); err != nil {
			slog.Error("recorder: flush failed", "error", err)
		}
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flush()
		case env, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Write(env); err != nil {
				slog.Error("recorder: write failed", "seq", env.Seq, "error", err)
			}
		}
	}
}

// Written returns the number of envelopes committed so far.
func (r *Recorder) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Count returns the number of stored records of stream in this session.
func (r *Recorder) Count(stream string) (int, error) {
	n := 0
	err := r.db.View(func(tx *bolt.Tx) error {
		b := streamBucket(tx, r.session, stream)
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Each calls fn for every stored record of stream in sequence order.
func (r *Recorder) Each(stream string, fn func(samplebus.Record) error) error {
	return r.db.View(func(tx *bolt.Tx) error {
		b := streamBucket(tx, r.session, stream)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			rec, err := samplebus.Decode(v)
			if err != nil {
				return err
			}
			return fn(rec)
		})
	})
}

// Close flushes buffered envelopes and closes the database.
func (r *Recorder) Close() error {
	flushErr := r.Flush()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return flushErr
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return fmt.Errorf("recorder: close: %w", err)
	}
	slog.Info("recorder: closed", "session", r.session, "written", r.Written())
	return flushErr
}

func streamBucket(tx *bolt.Tx, session, stream string) *bolt.Bucket {
	root := tx.Bucket([]byte(session))
	if root == nil {
		return nil
	}
	return root.Bucket([]byte(stream))
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
