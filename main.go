package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"hark/actions"
	"hark/audio"
	"hark/beep"
	"hark/config"
	"hark/doctor"
	"hark/hotkey"
	"hark/log"
	"hark/metrics"
	"hark/pipeline"
	"hark/server"
	"hark/shutdown"
	"hark/sink"
	"hark/transcriber"
)

var version = "dev"

type options struct {
	configPath string
	logPath    string
	profile    string
	setup      bool
	test       bool
	realtime   bool
	tui        bool
	global     bool
	hold       time.Duration
	benchmark  string
	runs       int
}

func run() {
	var opts options
	cfg := config.Default()

	flag.StringVar(&opts.configPath, "config", "", "YAML config file")
	flag.StringVar(&opts.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.StringVar(&opts.profile, "profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.BoolVar(&opts.setup, "setup", false, "Select microphone device interactively")
	flag.BoolVar(&opts.test, "test", false, "Test mode (headless, stdin-driven): hark -test <wav-file>")
	flag.BoolVar(&opts.realtime, "realtime", true, "In test mode, play the WAV file at real speed")
	flag.BoolVar(&opts.tui, "tui", true, "Run with terminal UI")
	flag.BoolVar(&opts.global, "global", false, "Toggle with the global "+hotkey.Combo+" hotkey as well")
	flag.DurationVar(&opts.hold, "hold", 350*time.Millisecond, "Holding the hotkey longer than this mutes on release (0 disables)")
	flag.StringVar(&opts.benchmark, "benchmark", "", "Transcribe a WAV file and print timings instead of listening")
	flag.IntVar(&opts.runs, "runs", 3, "Number of benchmark iterations")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")

	device := flag.String("device", "", "Use named microphone device")
	lang := flag.String("lang", cfg.Transcription.Language, "Language code for transcription. Empty = auto-detect")
	provider := flag.String("provider", cfg.Transcription.Provider, "Transcription provider: auto, groq, openai, deepgram, whisper or fake")
	format := flag.String("format", cfg.Transcription.Format, "Upload encoding: flac or wav")
	serve := flag.Bool("server", false, "Serve the HTTP API")
	addr := flag.String("addr", cfg.Server.Address, "HTTP API listen address")
	withActions := flag.Bool("actions", false, "Generate whiteboard actions from each transcript")
	sinkFile := flag.String("out", cfg.Sink.File, "File rewritten with the latest record (empty disables)")
	clip := flag.Bool("clipboard", false, "Copy each transcript to the clipboard")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("hark %s\n", version)
		os.Exit(0)
	}

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	// Flags given explicitly win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Audio.Device = *device
		case "lang":
			cfg.Transcription.Language = *lang
		case "provider":
			cfg.Transcription.Provider = *provider
		case "format":
			cfg.Transcription.Format = *format
		case "server":
			cfg.Server.Enabled = *serve
		case "addr":
			cfg.Server.Address = *addr
		case "actions":
			cfg.Actions.Enabled = *withActions
		case "out":
			cfg.Sink.File = *sinkFile
		case "clipboard":
			cfg.Sink.Clipboard = *clip
		case "logpath":
			cfg.Log.Path = opts.logPath
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logPath, err := log.ResolveDir(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if err := log.Init(log.Options{Level: cfg.Log.Level, Console: cfg.Log.Console && !opts.tui}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if opts.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", opts.profile)
			if err := http.ListenAndServe(opts.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	m := metrics.New()
	base, err := transcriber.New(transcriber.Config{
		Provider:     cfg.Transcription.Provider,
		Model:        cfg.Transcription.Model,
		BaseURL:      cfg.Transcription.BaseURL,
		Format:       cfg.Transcription.Format,
		Timeout:      cfg.Transcription.Timeout,
		WhisperModel: cfg.Transcription.WhisperModel,
		FakeText:     os.Getenv("HARK_FAKE_TEXT"),
	})
	if err != nil && !*doctorFlag {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var tr transcriber.Transcriber
	if base != nil {
		if c, ok := base.(io.Closer); ok {
			defer c.Close()
		}
		tr = transcriber.Limit(transcriber.Instrument(base, m), cfg.Transcription.MaxConcurrent)
	}

	if *doctorFlag {
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		os.Exit(runDoctor(cfg, tr))
	}

	if opts.benchmark != "" {
		os.Exit(runBenchmark(tr, cfg, opts.benchmark, opts.runs))
	}

	var wavPath string
	if opts.test {
		if flag.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: hark -test <wav-file>")
			os.Exit(1)
		}
		wavPath = flag.Arg(0)
		opts.tui = false
		beep.Disable()
	}

	if err := listen(cfg, opts, wavPath, tr, m); err != nil {
		log.Errorf("fatal: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Close()
		os.Exit(1)
	}
}

// listen runs the live pipeline until the user quits or a signal arrives.
func listen(cfg config.Config, opts options, wavPath string, tr transcriber.Transcriber, m *metrics.Metrics) error {
	hub := sink.NewHub()
	out := sink.NewMulti(m, sink.TranscriptLog{}, hub)
	if cfg.Sink.File != "" {
		out.Add(sink.NewFile(cfg.Sink.File))
	}
	if cfg.Sink.Clipboard {
		out.Add(sink.Clipboard{})
	}

	var gen actions.Generator
	if cfg.Actions.Enabled {
		g, err := actions.NewOpenAI(actions.OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: cfg.Actions.BaseURL,
			Model:   cfg.Actions.Model,
		})
		if err != nil {
			return err
		}
		gen = g
	}

	var actx audio.Context
	var err error
	if wavPath != "" {
		actx, err = audio.NewFakeContext(wavPath, opts.realtime)
	} else {
		actx, err = audio.NewContext()
	}
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer actx.Close()

	var dev *audio.DeviceInfo
	if opts.setup && cfg.Audio.Device == "" && wavPath == "" {
		if dev, err = audio.SelectDevice(actx); err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\nFalling back to default device\n", err)
			dev = nil
		}
	} else if dev, err = audio.FindDevice(actx, cfg.Audio.Device); err != nil {
		return err
	}

	capture, err := actx.NewCapture(dev, audio.CaptureConfig{
		SampleRate:  uint32(cfg.Audio.SampleRate),
		Channels:    uint32(cfg.Audio.Channels),
		BlockFrames: audio.BlockFrames(uint32(cfg.Audio.SampleRate), cfg.Audio.BlockDuration),
	})
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}
	defer capture.Close()

	var disp display
	var stats sessionStats
	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	toggles := make(chan struct{}, 16)
	toggle := newToggle(ctx, toggles)

	helpKey := "Enter"
	if opts.global {
		helpKey = hotkey.Combo
	}
	var tui *tuiDisplay
	if opts.tui {
		tui = newTUI(&stats, helpKey, toggle)
		disp = tui
	} else {
		disp = newLineDisplay(os.Stdout)
	}

	p, err := pipeline.New(pipeline.Config{
		SampleRate:        cfg.Audio.SampleRate,
		Channels:          cfg.Audio.Channels,
		BlockDuration:     cfg.Audio.BlockDuration,
		PollInterval:      cfg.Audio.PollInterval,
		Language:          cfg.Transcription.Language,
		BeamSize:          cfg.Transcription.BeamSize,
		TranscribeTimeout: cfg.Transcription.Timeout,
		SilenceWarn:       cfg.Silence.WarnAfter,
		AutoMute:          cfg.Silence.AutoMuteAfter,
		DisableSilence:    cfg.Silence.Disabled,
	}, pipeline.Deps{
		Device:      capture,
		Transcriber: tr,
		Sink:        out,
		Actions:     gen,
		Metrics:     m,
		OnBlock: func(b pipeline.Block) {
			disp.AudioLevel(blockLevel(b.Samples))
		},
	})
	if err != nil {
		return err
	}

	// done fires once per finished interval, empty or not.
	done := make(chan struct{}, 64)
	signalDone := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	p.Controller.Observe(func(ch pipeline.Change) {
		if ch.State == pipeline.Listening {
			go beep.PlayStart()
			go transcriber.Warm(tr)
			disp.Listening(ch.Gen)
			return
		}
		go beep.PlayEnd()
		disp.Muted(ch.Gen, ch.Utterance.Seconds(cfg.Audio.SampleRate, cfg.Audio.Channels))
		if ch.Utterance.Empty() {
			signalDone()
		}
	})
	p.Finalizer.OnDone(func(o pipeline.Outcome) {
		stats.add(o)
		if o.Err != nil {
			go beep.PlayError()
		}
		disp.Outcome(o)
		signalDone()
	})
	if p.Silence != nil {
		p.Silence.OnEvent = func(ev pipeline.SilenceEvent) {
			if ev == pipeline.SilenceWarn || ev == pipeline.SilenceRepeat {
				go beep.PlayError()
				disp.SilenceWarning()
			}
		}
	}

	go beep.Init()

	log.SessionStart(tr.Name(), cfg.Transcription.Language, cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.BlockDuration)
	defer func() { log.SessionEnd(stats.count()) }()

	g, gctx := errgroup.WithContext(ctx)
	if tui != nil {
		g.Go(func() error {
			go func() {
				<-gctx.Done()
				tui.p.Quit()
			}()
			_, err := tui.p.Run()
			stop()
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		})
		select {
		case <-tui.ready:
		case <-gctx.Done():
		}
	}

	disp.ModeLine(modeLineText(cfg, tr))
	disp.DeviceLine(deviceLineText(dev, capture))

	g.Go(func() error {
		defer stop()
		return p.Run(gctx, toggles)
	})

	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			Address:  cfg.Server.Address,
			Language: cfg.Transcription.Language,
			BeamSize: cfg.Transcription.BeamSize,
			Timeout:  cfg.Transcription.Timeout,
		}, tr, hub, m)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	listening := func() bool { return p.Controller.State() == pipeline.Listening }
	keys, err := startKeys(gctx, opts, wavPath, capture, done, toggle, listening, stop)
	if err != nil {
		stop()
		g.Wait()
		return err
	}
	defer keys()

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// startKeys wires the toggle sources for the current mode and returns a
// cleanup func.
func startKeys(ctx context.Context, opts options, wavPath string, capture audio.CaptureDevice,
	done <-chan struct{}, toggle func(), listening func() bool, quit func()) (func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	forward := func(hk hotkey.Hotkey, hold time.Duration) {
		tg := hotkey.NewToggler(hk, hold, listening)
		cleanups = append(cleanups, tg.Close)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-tg.Events():
					toggle()
				}
			}
		}()
	}

	if wavPath != "" {
		hk := hotkey.NewFake()
		forward(hk, opts.hold)
		fc, _ := capture.(*audio.FakeCapture)
		d := &testDriver{hk: hk, capture: fc, done: done}
		go func() {
			d.run(ctx, os.Stdin)
			quit()
		}()
		return cleanup, nil
	}

	if opts.global {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Errorf("hotkey register error: %v", err)
			return nil, err
		}
		cleanups = append(cleanups, hk.Unregister)
		forward(hk, opts.hold)
	}

	// The TUI reads the keyboard itself.
	if !opts.tui {
		term := hotkey.NewTerminal()
		if err := term.Register(); err != nil {
			cleanup()
			return nil, err
		}
		cleanups = append(cleanups, term.Unregister)
		forward(term, 0)
		go func() {
			select {
			case <-term.Quit():
				quit()
			case <-ctx.Done():
			}
		}()
		fmt.Println("Press Enter to toggle listening, q to quit.")
	}
	return cleanup, nil
}

func deviceLineText(dev *audio.DeviceInfo, capture audio.CaptureDevice) string {
	name := "system default"
	if dev != nil {
		name = dev.Name
	} else if n := capture.DeviceName(); n != "" {
		name = n
	}
	if audio.IsBluetooth(name) {
		name += " (BT!)"
	}
	return "mic: " + name
}

func modeLineText(cfg config.Config, tr transcriber.Transcriber) string {
	label := tr.Name()
	if lang := cfg.Transcription.Language; lang != "" {
		label += " (" + lang + ")"
	}
	return fmt.Sprintf("[%d Hz | %s | %s]", cfg.Audio.SampleRate, cfg.Transcription.Format, label)
}

func runDoctor(cfg config.Config, tr transcriber.Transcriber) int {
	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	env := doctor.Env{
		Transcriber: tr,
		SampleRate:  cfg.Audio.SampleRate,
		Language:    cfg.Transcription.Language,
		Hotkey:      hotkey.New(),
		Diagnose:    hotkey.Diagnose,
		LogDir:      log.Dir(),
		Timeout:     cfg.Transcription.Timeout,
	}
	if actx, err := audio.NewContext(); err != nil {
		fmt.Printf("Warning: cannot connect to audio: %v\n", err)
	} else {
		defer actx.Close()
		env.Audio = actx
		if env.Device, err = audio.FindDevice(actx, cfg.Audio.Device); err != nil {
			fmt.Printf("Warning: %v, using the default device\n", err)
		}
	}
	return doctor.Run(ctx, os.Stdout, doctor.Checks(env))
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// runBenchmark transcribes wavFile runs times through tr and prints what
// each call took. It returns the process exit code.
func runBenchmark(tr transcriber.Transcriber, cfg config.Config, wavFile string, runs int) int {
	clip, err := audio.LoadWAV(wavFile)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	samples, err := clip.Mono(cfg.Audio.SampleRate)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	fmt.Printf("Benchmark: %s, %.1fs of audio (%d runs)\n", wavFile, clip.Duration(), runs)

	for i := 1; i <= runs; i++ {
		fmt.Printf("=== Run %d ===\n", i)
		ctx, cancel := benchmarkContext(cfg.Transcription.Timeout)
		start := time.Now()
		res, err := tr.Transcribe(ctx, transcriber.Request{
			Samples:    samples,
			SampleRate: cfg.Audio.SampleRate,
			Language:   cfg.Transcription.Language,
			BeamSize:   cfg.Transcription.BeamSize,
		})
		took := time.Since(start)
		cancel()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}

		text := res.Text
		if text == "" {
			text = "(no speech detected)"
		}
		fmt.Printf("Text: %s\n", text)
		fmt.Printf("  total: %d ms\n", took.Milliseconds())
		if n := res.Metrics; n != nil {
			fmt.Printf("  dns: %d ms  tls: %d ms  ttfb: %d ms  reused: %v\n",
				n.DNS.Milliseconds(), n.TLS.Milliseconds(), n.TTFB.Milliseconds(), n.ConnReused)
		}
		fmt.Println()

		if i < runs {
			time.Sleep(500 * time.Millisecond)
		}
	}
	return 0
}

// benchmarkContext bounds one run by timeout; zero means no limit.
func benchmarkContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}
