// Package gazecapture is a client session manager for eye trackers driven by
// the vendor stream engine.
//
// It owns the native resources of a capture session and keeps them in strict
// ownership order, classifies every native status into a typed error, and
// drives the wait/dispatch/reconnect cycle that delivers samples to consumers.
//
// # Philosophy
//
// "Release exactly once, newest first. A timeout is not an error."
//
// Every native handle is owned by one Guard from the moment it is created.
// Teardown never fails the caller: release errors are logged and swallowed.
// The polling loop treats timeouts as idle cycles and lost connections as a
// recoverable state, so only genuinely unexpected statuses end a session.
//
// # Ownership
//
//	APIContext
//	  └── DeviceSession (one per opened device)
//	        └── SubscriptionSet
//	              └── Subscription (one per stream)
//
// Closing a parent closes its live children first, in reverse creation order.
// A child can never outlive its parent.
//
// # Polling
//
// PollLoop runs on the caller's goroutine, which also receives every consumer
// callback:
//
//	Waiting      --data ready-->      Dispatching
//	Waiting      --timed out-->       Waiting
//	Waiting      --connection lost--> Reconnecting
//	Dispatching  --ok-->              Waiting
//	Dispatching  --connection lost--> Reconnecting
//	Reconnecting --ok-->              Waiting
//	Waiting      --budget, Stop, ctx--> Stopped
//	any other error                 --> Failed
//
// # Basic Usage
//
//	api, err := gazecapture.NewAPIContext(sdk)
//	if err != nil {
//	    return err
//	}
//	defer api.Close()
//
//	urls, err := api.ListDevices()
//	if err != nil || len(urls) == 0 {
//	    return err
//	}
//
//	dev, err := api.OpenDevice(urls[0], gazecapture.FieldOfUseInteractive)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	dev.Subscribe(gazecapture.GazePoint, gazecapture.ConsumerFunc(func(s gazecapture.Sample) {
//	    gp := s.(gazecapture.GazePointSample)
//	    fmt.Println(gp.PositionXY)
//	}))
//
//	loop := gazecapture.NewPollLoop(dev, gazecapture.DefaultLoopConfig())
//	return loop.Run(ctx)
//
// Runner wraps the same sequence end to end and fans samples out to sinks
// (stdout, MQTT, a bbolt recording) through a non-blocking bus.
//
// # Backends
//
// The SDK interface has two implementations: internal/mocksdk, a simulated
// device used by tests and the default build, and internal/native/tobii, the
// cgo binding compiled with the "tobii" build tag.
package gazecapture
