package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	Pd "github.com/maroda/pogo/display"
	Pm "github.com/maroda/pogo/motion"
	Po "github.com/maroda/pogo/obvy"
	Mp "github.com/maroda/pogo/plugin"
)

const bounceBatch = 16

var (
	configFile = flag.String("config", "", "JSON config file, defaults apply when empty")
	noTUI      = flag.Bool("notui", false, "run the API only, without the terminal view")
	logFile    = flag.String("log", "pogo.log", "log destination while the terminal view is up")
)

func init() {
	User := Pm.FillEnvVar("USER")
	fmt.Printf("Pogo initializing for ... %s\n", User)
}

// setupLogging keeps the terminal clean when the TUI owns it
func setupLogging(tui bool) (io.Closer, error) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(Pm.FillEnvVar("POGO_LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if !tui {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, opts)))
	return f, nil
}

func loadConfig() (*Pm.ConfigFile, error) {
	if *configFile == "" {
		return Pm.DefaultConfigFile(), nil
	}
	return Pm.LoadConfigFileName(*configFile)
}

func main() {
	flag.Parse()

	logCloser, err := setupLogging(!*noTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open log file: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(); err != nil {
		slog.Error("Pogo exited with error", slog.Any("Error", err))
		fmt.Fprintf(os.Stderr, "pogo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cf, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	otelShutdown, err := Po.InitOTel(Pm.FillEnvVar("POGO_OTEL"))
	if err != nil {
		slog.Error("Tracing not started", slog.Any("Error", err))
	}
	defer otelShutdown()

	stats := Po.NewStatsInternal()

	// Persisted choices sit between the file and the environment
	store, err := Mp.NewBadgerStore(cf.StorePath, bounceBatch)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	settings, err := store.LoadSettings()
	restored := err == nil
	switch {
	case errors.Is(err, Mp.ErrNotFound):
		slog.Info("No saved settings, using config", slog.String("store", cf.StorePath))
	case err != nil:
		slog.Error("Could not load settings", slog.Any("Error", err))
	default:
		cf.Analyzer = cf.Analyzer.WithSettings(settings)
	}
	cf.ApplyEnv()
	if err := cf.Analyzer.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a := Pm.NewAnalyzer(cf.Analyzer, nil)
	if restored {
		a.ApplySettings(settings)
		// Restore baseline and gravity, but keep the env overrides on top
		if err := a.UpdateConfig(cf.Analyzer); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	a.Store = store
	a.Log = store
	a.Stats = stats
	stats.SetBaseline(a.Baseline())

	sources := make([]Pm.Source, 0, len(cf.Sources))
	for _, sc := range cf.Sources {
		src, err := Pm.NewSource(sc)
		if err != nil {
			return fmt.Errorf("source %q: %w", sc.ID, err)
		}
		if hs, ok := src.(*Pm.HTTPSource); ok {
			hs.Stats = stats
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		slog.Warn("No sources configured, samples arrive only on /ingest")
	}

	ss := Pd.NewSampleSupervisor(a, sources)

	var v *Pd.View
	if *noTUI {
		v = Pd.NewView(nil, ss, stats)
	} else {
		screen, err := Pd.GetTTY()
		if err != nil {
			return fmt.Errorf("opening terminal: %w", err)
		}
		v = Pd.NewView(screen, ss, stats)
	}
	v.Log = store

	outputs := Mp.Fanout{v, v.Hub}
	midiOut, err := Pd.InitMIDIOutput(cf.MIDIPort)
	if err != nil {
		slog.Warn("Continuing without MIDI audio", slog.Any("Error", err))
	} else {
		defer midiOut.Close()
		outputs = append(outputs, midiOut)
	}
	a.Out = outputs
	v.Outputs = outputs

	slog.Info("Pogo ready",
		slog.String("listen", cf.Listen),
		slog.Int("sources", len(sources)),
		slog.String("outputs", v.OutputInfo()))

	if *noTUI {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return v.StartWebNoTUI(ctx, cf.Listen)
	}
	return v.StartBounceView(cf.Listen)
}
