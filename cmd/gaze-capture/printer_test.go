package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	gazecapture "github.com/e7canasta/orion-gaze-capture"
)

func TestFormatSample(t *testing.T) {
	testCases := []struct {
		name   string
		sample gazecapture.Sample
		want   string
	}{
		{
			"gaze_point",
			gazecapture.GazePointSample{TimestampUS: 42, Valid: true, PositionXY: [2]float32{0.5, 0.25}},
			"GAZE 42: 0.5, 0.25",
		},
		{
			"gaze_origin",
			gazecapture.GazeOriginSample{TimestampUS: 7, LeftXYZ: [3]float32{-31, 2, 600}, RightXYZ: [3]float32{31, 2, 600}},
			"GAZE ORIGIN 7: LEFT -31, 2, 600, RIGHT 31, 2, 600",
		},
		{
			"eye_position",
			gazecapture.EyePositionSample{TimestampUS: 8, LeftXYZ: [3]float32{0.5, 0.5, 0.5}, RightXYZ: [3]float32{0.5, 0.5, 0.5}},
			"EYE POSITION 8: LEFT 0.5, 0.5, 0.5 RIGHT 0.5, 0.5, 0.5",
		},
		{
			"head_pose",
			gazecapture.HeadPoseSample{TimestampUS: 9, PositionXYZ: [3]float32{0, 0, 600}, RotationXYZ: [3]float32{0, 0.25, 0}},
			"HEAD POSE 9: POSITION 0, 0, 600 ROTATION 0, 0.25, 0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatSample(tc.sample); got != tc.want {
				t.Errorf("formatSample() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPrinter_Run(t *testing.T) {
	var buf bytes.Buffer
	ch := make(chan gazecapture.Envelope, 2)
	ch <- gazecapture.Envelope{Seq: 1, Sample: gazecapture.GazePointSample{TimestampUS: 1}}
	ch <- gazecapture.Envelope{Seq: 2, Sample: gazecapture.GazePointSample{TimestampUS: 2}}
	close(ch)

	printer{w: &buf}.Run(context.Background(), ch)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "GAZE 2:") {
		t.Errorf("Unexpected output: %q", buf.String())
	}
}
