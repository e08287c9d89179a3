package main

import (
	"context"
	"fmt"
	"io"

	gazecapture "github.com/e7canasta/orion-gaze-capture"
)

// printer writes one line per sample in the capture demo format.
type printer struct {
	w io.Writer
}

func (p printer) Run(ctx context.Context, ch <-chan gazecapture.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if line := formatSample(env.Sample); line != "" {
				fmt.Fprintln(p.w, line)
			}
		}
	}
}

func formatSample(s gazecapture.Sample) string {
	switch v := s.(type) {
	case gazecapture.GazePointSample:
		return fmt.Sprintf("GAZE %d: %g, %g", v.TimestampUS, v.PositionXY[0], v.PositionXY[1])
	case gazecapture.GazeOriginSample:
		return fmt.Sprintf("GAZE ORIGIN %d: LEFT %g, %g, %g, RIGHT %g, %g, %g", v.TimestampUS,
			v.LeftXYZ[0], v.LeftXYZ[1], v.LeftXYZ[2],
			v.RightXYZ[0], v.RightXYZ[1], v.RightXYZ[2])
	case gazecapture.EyePositionSample:
		return fmt.Sprintf("EYE POSITION %d: LEFT %g, %g, %g RIGHT %g, %g, %g", v.TimestampUS,
			v.LeftXYZ[0], v.LeftXYZ[1], v.LeftXYZ[2],
			v.RightXYZ[0], v.RightXYZ[1], v.RightXYZ[2])
	case gazecapture.HeadPoseSample:
		return fmt.Sprintf("HEAD POSE %d: POSITION %g, %g, %g ROTATION %g, %g, %g", v.TimestampUS,
			v.PositionXYZ[0], v.PositionXYZ[1], v.PositionXYZ[2],
			v.RotationXYZ[0], v.RotationXYZ[1], v.RotationXYZ[2])
	default:
		return ""
	}
}
