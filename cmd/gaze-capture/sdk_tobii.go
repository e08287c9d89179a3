//go:build tobii

package main

import (
	gazecapture "github.com/e7canasta/orion-gaze-capture"
	"github.com/e7canasta/orion-gaze-capture/internal/native/tobii"
)

const backend = "tobii"

func newSDK() gazecapture.SDK {
	return tobii.New()
}
