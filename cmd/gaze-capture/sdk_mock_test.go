//go:build !tobii

package main

import (
	"io"
	"log/slog"
	"testing"

	gazecapture "github.com/e7canasta/orion-gaze-capture"
)

func TestNewMockSDK_DeviceCount(t *testing.T) {
	testCases := []struct {
		name    string
		devices int
		want    []string
	}{
		{"negative", -1, nil},
		{"none", 0, nil},
		{"one", 1, []string{"mock://dev1"}},
		{"three", 3, []string{"mock://dev1", "mock://dev2", "mock://dev3"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			api, err := gazecapture.NewAPIContext(newMockSDK(tc.devices, 0),
				gazecapture.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			if err != nil {
				t.Fatalf("NewAPIContext failed: %v", err)
			}
			defer api.Close()

			got, err := api.ListDevices()
			if err != nil {
				t.Fatalf("ListDevices failed: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("ListDevices = %q, want %q", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("device %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}
