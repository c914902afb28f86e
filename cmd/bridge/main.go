package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/control"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/reference"
	"github.com/wippyai/wasm-audio/runtime"
)

type paramSetting struct {
	name  string
	value float32
}

// paramList collects repeated -param name=value flags.
type paramList []paramSetting

func (p *paramList) String() string {
	parts := make([]string, len(*p))
	for i, s := range *p {
		parts[i] = fmt.Sprintf("%s=%g", s.name, s.value)
	}
	return strings.Join(parts, ",")
}

func (p *paramList) Set(v string) error {
	s, err := parseParam(v)
	if err != nil {
		return err
	}
	*p = append(*p, s)
	return nil
}

func parseParam(v string) (paramSetting, error) {
	name, raw, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return paramSetting{}, fmt.Errorf("want name=value, got %q", v)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil {
		return paramSetting{}, fmt.Errorf("parameter %s: %w", name, err)
	}
	return paramSetting{name: name, value: float32(f)}, nil
}

type options struct {
	wasm        string
	config      string
	builtin     string
	rate        float64
	frames      int
	seconds     float64
	params      paramList
	note        int
	interactive bool
	logLevel    string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("bridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.wasm, "wasm", "", "Path to guest wasm module")
	fs.StringVar(&opts.config, "config", "", "Path to descriptor tables JSON (with -wasm)")
	fs.StringVar(&opts.builtin, "builtin", "", "Built-in guest: gain or tone")
	fs.Float64Var(&opts.rate, "rate", 48000, "Sample rate in Hz")
	fs.IntVar(&opts.frames, "frames", 256, "Frames per host callback")
	fs.Float64Var(&opts.seconds, "seconds", 1, "Offline render length in seconds")
	fs.Var(&opts.params, "param", "Set an input parameter before rendering (name=value, repeatable)")
	fs.IntVar(&opts.note, "note", -1, "Send a note-on with this note number before rendering")
	fs.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: bridge -wasm <file.wasm> -config <tables.json> [flags]")
		fmt.Fprintln(stderr, "       bridge -builtin gain|tone [flags]")
		fmt.Fprintln(stderr, "       bridge -builtin tone -i  (interactive mode)")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case opts.builtin != "" && opts.wasm != "":
		return nil, fmt.Errorf("-builtin and -wasm are mutually exclusive")
	case opts.builtin == "" && opts.wasm == "":
		fs.Usage()
		return nil, fmt.Errorf("one of -wasm or -builtin is required")
	case opts.wasm != "" && opts.config == "":
		return nil, fmt.Errorf("-wasm requires -config")
	case opts.builtin != "" && opts.builtin != "gain" && opts.builtin != "tone":
		return nil, fmt.Errorf("unknown builtin %q", opts.builtin)
	case opts.rate <= 0:
		return nil, fmt.Errorf("-rate must be positive")
	case opts.frames <= 0:
		return nil, fmt.Errorf("-frames must be positive")
	case opts.seconds <= 0 && !opts.interactive:
		return nil, fmt.Errorf("-seconds must be positive")
	case opts.note > 127:
		return nil, fmt.Errorf("-note must be 0..127")
	}
	return opts, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.interactive {
		err = runInteractive(ctx, opts)
	} else {
		err = run(ctx, opts, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, w io.Writer) error {
	log, err := newLogger(opts.logLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	defer log.Sync()

	rt, err := runtime.NewWithConfig(ctx, runtime.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	mod, err := load(ctx, rt, opts)
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	sess, err := mod.Open(ctx, float32(opts.rate), offlineSession(log))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close(ctx)

	return render(ctx, sess, opts, w)
}

func load(ctx context.Context, rt *runtime.Runtime, opts *options) (*runtime.Module, error) {
	if opts.wasm != "" {
		mod, err := rt.LoadFile(ctx, opts.wasm, opts.config)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", opts.wasm, err)
		}
		return mod, nil
	}

	var (
		g   *reference.Guest
		err error
	)
	switch opts.builtin {
	case "gain":
		g, err = reference.Gain([]descriptor.Bus{
			{Name: "in", Direction: descriptor.Input, Channels: 2},
			{Name: "out", Direction: descriptor.Output, Channels: 2},
		}, reference.Config{})
	default:
		g, err = reference.Tone(reference.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", opts.builtin, err)
	}
	return rt.LoadGuest(ctx, g)
}

// offlineSession sizes the notification path so a back-to-back render does
// not outrun the pump.
func offlineSession(log *zap.Logger) runtime.SessionConfig {
	return runtime.SessionConfig{
		Bridge: bridge.Options{
			NotificationCapacity: 4096,
			Permission:           bridge.PermissionGranted,
		},
		Control: control.Config{
			ReportBuffer: 4096,
			Logger:       log.Named("control"),
		},
	}
}

// applyControls sends the -param settings and the -note event.
func applyControls(ch *control.Channel, opts *options) error {
	for _, p := range opts.params {
		if err := ch.SetParameter(p.name, p.value); err != nil {
			return fmt.Errorf("set %s: %w", p.name, err)
		}
	}
	if opts.note >= 0 {
		if err := ch.NoteOn(uint8(opts.note), 100); err != nil {
			return fmt.Errorf("note %d: %w", opts.note, err)
		}
	}
	return nil
}
