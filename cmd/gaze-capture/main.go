package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	gazecapture "github.com/e7canasta/orion-gaze-capture"
	"github.com/e7canasta/orion-gaze-capture/internal/config"
	"github.com/e7canasta/orion-gaze-capture/internal/emitter"
	"github.com/e7canasta/orion-gaze-capture/internal/recorder"
)

// Version information
const version = "v0.1.0"

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup completes before exit.
func run() int {
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	device := flag.String("device", "", "Device URL (default: first enumerated device)")
	iterations := flag.Uint64("iterations", 0, "Wait cycles before stopping (default: 1000)")
	timeout := flag.Duration("timeout", 0, "Bound of each wait for callbacks (default: 1s)")
	streams := flag.String("streams", "", "Comma-separated streams: gaze_point,gaze_origin,eye_position,head_pose")
	skipInvalid := flag.Bool("skip-invalid", false, "Drop samples without any valid flag")
	mqttBroker := flag.String("mqtt", "", "MQTT broker to publish samples to (optional)")
	recordPath := flag.String("record", "", "bbolt file to record samples to (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	jsonLogs := flag.Bool("json", false, "Log as JSON")
	quiet := flag.Bool("quiet", false, "Do not print samples")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gaze-capture %s (%s)\n", version, backend)
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	// Flags override file values
	if *device != "" {
		cfg.Device.Address = *device
	}
	if *iterations > 0 {
		cfg.Loop.Iterations = *iterations
	}
	if *timeout > 0 {
		cfg.Loop.WaitTimeout = *timeout
	}
	if *streams != "" {
		cfg.Streams = cfg.Streams[:0]
		for _, name := range strings.Split(*streams, ",") {
			cfg.Streams = append(cfg.Streams, strings.TrimSpace(name))
		}
	}
	if *skipInvalid {
		cfg.SkipInvalid = true
	}
	if *mqttBroker != "" {
		cfg.MQTT.Broker = *mqttBroker
	}
	if *recordPath != "" {
		cfg.Recorder.Path = *recordPath
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *jsonLogs {
		cfg.Log.Format = "json"
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Printf("Error: invalid configuration: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	runnerCfg, err := runnerConfig(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	sdkLevel, _ := gazecapture.ParseLogLevel(cfg.Log.SDKLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []gazecapture.RunnerOption{
		gazecapture.WithRunnerLogger(logger),
		gazecapture.WithAPIOptions(gazecapture.WithSDKLogLevel(sdkLevel)),
		gazecapture.WithTransitionHook(func(t gazecapture.Transition) {
			if t.To == gazecapture.StateReconnecting {
				fmt.Println("Connection failed")
			}
		}),
	}
	if !*quiet {
		opts = append(opts, gazecapture.WithSink("stdout", printer{w: os.Stdout}))
	}

	var mqttEmitter *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mqttEmitter = emitter.NewMQTTEmitter(emitter.Config{
			Broker:         cfg.MQTT.Broker,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			ClientID:       cfg.MQTT.ClientID,
			StatusInterval: cfg.MQTT.StatusInterval,
		})
		if err := mqttEmitter.Connect(ctx); err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}
		defer mqttEmitter.Disconnect()
		opts = append(opts,
			gazecapture.WithSink("mqtt", mqttEmitter),
			gazecapture.WithLatestSink("mqtt-latest", mqttEmitter),
		)
	}

	// The recorder needs the session ID, which exists only inside Run, so it
	// opens lazily on the first envelope.
	var rec *lazyRecorder
	if cfg.Recorder.Path != "" {
		rec = &lazyRecorder{path: cfg.Recorder.Path}
		opts = append(opts, gazecapture.WithSink("recorder", rec))
	}

	runner := gazecapture.NewRunner(newSDK(), runnerCfg, opts...)

	sigChan := make(chan os.Signal, 1)
	notifyShutdown(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
			runner.Stop()
		case <-ctx.Done():
		}
	}()

	printBanner(cfg)

	report, runErr := runner.Run(ctx)
	if rec != nil {
		rec.close()
	}

	if report != nil {
		printReport(report, mqttEmitter, rec)
	}
	if runErr != nil {
		fmt.Printf("Error: %v\n", runErr)
		return 1
	}
	return 0
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runnerConfig(cfg *config.Config) (gazecapture.RunnerConfig, error) {
	rc := gazecapture.DefaultRunnerConfig()
	rc.Address = cfg.Device.Address

	mode, ok := gazecapture.ParseFieldOfUse(cfg.Device.FieldOfUse)
	if !ok {
		return rc, fmt.Errorf("unknown field of use %q", cfg.Device.FieldOfUse)
	}
	rc.FieldOfUse = mode

	rc.Streams = rc.Streams[:0]
	for _, name := range cfg.Streams {
		kind, ok := gazecapture.ParseStreamKind(name)
		if !ok {
			return rc, fmt.Errorf("unknown stream %q", name)
		}
		rc.Streams = append(rc.Streams, kind)
	}

	rc.Loop = gazecapture.LoopConfig{
		WaitTimeout:   cfg.Loop.WaitTimeout,
		MaxIterations: cfg.Loop.Iterations,
		Reconnect: gazecapture.ReconnectConfig{
			MaxRetries:    cfg.Reconnect.MaxRetries,
			RetryDelay:    cfg.Reconnect.RetryDelay,
			MaxRetryDelay: cfg.Reconnect.MaxRetryDelay,
		},
	}
	rc.BusBuffer = cfg.Bus.Buffer
	rc.SkipInvalid = cfg.SkipInvalid
	return rc, nil
}

// lazyRecorder opens the bbolt recorder with the session ID of the first
// envelope it receives.
type lazyRecorder struct {
	path string
	rec  *recorder.Recorder
}

func (l *lazyRecorder) Run(ctx context.Context, ch <-chan gazecapture.Envelope) {
	first, ok := <-ch
	if !ok {
		return
	}
	rec, err := recorder.Open(l.path, first.SessionID)
	if err != nil {
		slog.Error("recorder disabled", "error", err)
		for range ch {
		}
		return
	}
	l.rec = rec

	if err := rec.Write(first); err != nil {
		slog.Error("recorder: write failed", "seq", first.Seq, "error", err)
	}
	rec.Run(ctx, ch)
}

func (l *lazyRecorder) close() {
	if l.rec == nil {
		return
	}
	if err := l.rec.Close(); err != nil {
		slog.Error("recorder: close failed", "error", err)
	}
}

func printBanner(cfg *config.Config) {
	address := cfg.Device.Address
	if address == "" {
		address = "(first enumerated)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║        Gaze Capture - Orion Eye Tracker Client           ║\n")
	fmt.Printf("║                      Version %s                        ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Backend:       %s\n", backend)
	fmt.Printf("  Device:        %s\n", address)
	fmt.Printf("  Field of Use:  %s\n", cfg.Device.FieldOfUse)
	fmt.Printf("  Streams:       %s\n", strings.Join(cfg.Streams, ", "))
	fmt.Printf("  Iterations:    %d\n", cfg.Loop.Iterations)
	fmt.Printf("  Wait Timeout:  %s\n", cfg.Loop.WaitTimeout)
	if cfg.SkipInvalid {
		fmt.Printf("  Skip Invalid:  yes\n")
	}
	if cfg.MQTT.Broker != "" {
		fmt.Printf("  MQTT Broker:   %s\n", cfg.MQTT.Broker)
	}
	if cfg.Recorder.Path != "" {
		fmt.Printf("  Record File:   %s\n", cfg.Recorder.Path)
	}
	fmt.Printf("\n")
	fmt.Printf("Initializing API!\n")
}

func printReport(report *gazecapture.Report, mqttEmitter *emitter.MQTTEmitter, rec *lazyRecorder) {
	fmt.Printf("%q\n", report.Devices)
	if report.NoDevices() {
		fmt.Printf("No devices\n")
		return
	}

	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Session:            %s\n", report.SessionID)
	fmt.Printf("  Device:             %s\n", report.Device)
	fmt.Printf("  Final State:        %s\n", report.FinalState)
	fmt.Printf("  Total Uptime:       %s\n", report.Duration.Round(time.Millisecond))
	fmt.Printf("  Wait Cycles:        %d\n", report.Loop.Iterations)
	fmt.Printf("  Data Ready:         %d\n", report.Loop.DataReady)
	fmt.Printf("  Timed Out:          %d\n", report.Loop.TimedOut)
	fmt.Printf("  Connection Lost:    %d\n", report.Loop.ConnectionLost)
	fmt.Printf("  Reconnection Count: %d (attempts: %d)\n", report.Loop.Reconnects, report.Loop.ReconnectAttempts)
	fmt.Printf("─────────────────────────────────────────────────────────\n")
	for _, kind := range report.Streams {
		rate := report.Rates[kind]
		fmt.Printf("  %-13s %7d samples  %7.2f Hz  stable=%v\n",
			kind.String()+":", report.Dispatched[kind], rate.RateMean, rate.IsStable)
	}
	if report.Latest != nil {
		fmt.Printf("  Last Sample:        #%d %s\n", report.Latest.Seq, report.Latest.Sample.Kind())
	}
	if report.Bus.TotalDropped > 0 {
		fmt.Printf("  Sink Drops:         %d\n", report.Bus.TotalDropped)
	}
	if mqttEmitter != nil {
		stats := mqttEmitter.Stats()
		var published uint64
		for _, n := range stats.Published {
			published += n
		}
		fmt.Printf("  MQTT Published:     %d (errors: %d)\n", published, stats.Errors)
	}
	if rec != nil && rec.rec != nil {
		fmt.Printf("  Recorded:           %d\n", rec.rec.Written())
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
