//go:build !tobii

package main

import (
	"flag"
	"strconv"

	gazecapture "github.com/e7canasta/orion-gaze-capture"
	"github.com/e7canasta/orion-gaze-capture/internal/mocksdk"
)

const backend = "mock"

var (
	mockRate    = flag.Float64("mock-rate", 60, "Simulated sample rate in Hz (mock backend)")
	mockDevices = flag.Int("mock-devices", 1, "Number of simulated devices, 0 for none (mock backend)")
)

func newSDK() gazecapture.SDK {
	return newMockSDK(*mockDevices, *mockRate)
}

// newMockSDK simulates the given number of trackers at rate Hz. A negative
// count means none.
func newMockSDK(devices int, rate float64) *mocksdk.SDK {
	if devices < 0 {
		devices = 0
	}
	urls := make([]string, 0, devices)
	for i := 1; i <= devices; i++ {
		urls = append(urls, mockURL(i))
	}
	return mocksdk.New(
		mocksdk.WithDevices(urls...),
		mocksdk.WithRate(rate),
	)
}

func mockURL(i int) string {
	if i == 1 {
		return mocksdk.DefaultDeviceURL
	}
	return "mock://dev" + strconv.Itoa(i)
}
