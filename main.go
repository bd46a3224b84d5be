package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"scribe/audio"
	"scribe/beep"
	"scribe/config"
	"scribe/doctor"
	"scribe/hotkey"
	"scribe/log"
	"scribe/mic"
	"scribe/recorder"
	"scribe/server"
	"scribe/shutdown"
	"scribe/transcriber"
	"scribe/translate"
	"scribe/upload"
)

var version = "dev"

// holdThreshold separates a tap from push-to-talk on the global hotkey.
const holdThreshold = 350 * time.Millisecond

func run() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "serve" {
		os.Exit(runServe(args[1:]))
	}
	os.Exit(runClient(args))
}

// commonFlags are shared by the client and the serve subcommand.
type commonFlags struct {
	config  *string
	envFile *string
	logPath *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:  fs.String("config", "", "config file (default: $SCRIBE_CONFIG or ~/.config/scribe/config.toml)"),
		envFile: fs.String("env", ".env", "dotenv file loaded before SCRIBE_* variables"),
		logPath: fs.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)"),
	}
}

// setup loads the configuration and opens the diagnostics and crash logs.
func (f commonFlags) setup() (*config.Config, error) {
	cfg, used, err := config.Load(*f.config, *f.envFile)
	if err != nil {
		return nil, err
	}

	logFlag := *f.logPath
	if logFlag == "" {
		logFlag = cfg.LogDir
	}
	logPath, err := log.ResolveDir(logFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve log directory: %w", err)
	}
	log.SetDir(logPath)
	if err := log.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	initCrashLog()
	if used != "" {
		log.Info("config: " + used)
	}
	return cfg, nil
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

func runClient(args []string) int {
	fs := flag.NewFlagSet("scribe", flag.ExitOnError)
	common := addCommonFlags(fs)
	deviceFlag := fs.String("device", "", "Use named microphone device")
	setupFlag := fs.Bool("setup", false, "Select microphone device (otherwise uses the configured or system default)")
	uploadFlag := fs.String("upload-url", "", "Recording server upload endpoint")
	gainFlag := fs.Int("gain", 0, "Software gain multiplier, 0 or 1 = none (max 16)")
	testFlag := fs.Bool("test", false, "Test mode (headless, stdin-driven): scribe -test <wav-file>")
	doctorFlag := fs.Bool("doctor", false, "Run system diagnostics and exit")
	writeConfigFlag := fs.Bool("write-config", false, "Write a sample config file and exit")
	printConfigFlag := fs.Bool("print-config", false, "Print the effective configuration and exit")
	versionFlag := fs.Bool("version", false, "Print version and exit")
	fs.Parse(args)

	if *versionFlag {
		fmt.Printf("scribe %s\n", version)
		return 0
	}

	if *writeConfigFlag {
		return writeSampleConfig(*common.config)
	}

	cfg, err := common.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Close()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Client.Device = *deviceFlag
		case "upload-url":
			cfg.Client.UploadURL = *uploadFlag
		case "gain":
			cfg.Client.Gain = *gainFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *printConfigFlag {
		return printConfig(os.Stdout, cfg)
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if *doctorFlag {
		return doctor.Run(ctx, os.Stdout, doctor.Checks(cfg))
	}

	up, err := upload.New(cfg.Client.UploadURL, time.Duration(cfg.Client.UploadTimeoutS)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *testFlag {
		if fs.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: scribe -test <wav-file>")
			return 1
		}
		log.SessionStart("test", up.Endpoint())
		if err := runTestMode(ctx, fs.Arg(0), up, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if *setupFlag && *deviceFlag == "" {
		name, err := pickDevice()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\n", err)
			fmt.Fprintln(os.Stderr, "Falling back to default device")
		}
		cfg.Client.Device = name
	}

	return runInteractive(ctx, cfg, up)
}

func pickDevice() (string, error) {
	actx, err := audio.NewContext()
	if err != nil {
		return "", err
	}
	defer actx.Close()
	dev, err := audio.SelectDevice(actx)
	if err != nil || dev == nil {
		return "", err
	}
	return dev.Name, nil
}

func runInteractive(ctx context.Context, cfg *config.Config, up *upload.Client) int {
	if cfg.Client.Beep {
		beep.Init()
	} else {
		beep.Disable()
	}
	go up.Warm()

	device := cfg.Client.Device
	log.SessionStart(deviceLabel(device), up.Endpoint())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ctrl *recorder.Controller
	model := newTUIModel(device, up.Endpoint(), func() { ctrl.Toggle() })

	var presses *hotkey.Presses
	if cfg.Client.Hotkey {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey unavailable: %v", err)
			model.notice = "global hotkey unavailable: " + err.Error()
		} else {
			defer hk.Unregister()
			presses = hotkey.NewPresses(hk, holdThreshold)
			defer presses.Close()
		}
	}

	p := NewTUIProgram(model)
	fb := newFeedback(tuiSink{p: p}, cfg.Client.CopyLink)
	ctrl = recorder.New(recorder.Options{
		Source: mic.NewSource(mic.Options{
			Device: device,
			Gain:   cfg.Client.Gain,
			Level:  func(rms float64) { p.Send(AudioLevelMsg{Level: rms}) },
		}),
		Uploader: up,
		Display:  fb,
		Notifier: fb,
		OnUpload: fb.Uploaded,
	})
	if presses != nil {
		go forwardToggles(ctx, presses, ctrl)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	cancel()
	<-done
	log.SessionEnd(fb.uploads())
	if err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func deviceLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

func forwardToggles(ctx context.Context, presses *hotkey.Presses, ctrl *recorder.Controller) {
	for {
		select {
		case <-presses.Toggles():
			ctrl.Toggle()
		case <-ctx.Done():
			return
		}
	}
}

func writeSampleConfig(path string) int {
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists\n", path)
		return 1
	}
	if err := config.CreateSample(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s\n", path)
	return 0
}

func printConfig(w io.Writer, cfg *config.Config) int {
	data, err := cfg.Redacted().Marshal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	w.Write(data)
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("scribe serve", flag.ExitOnError)
	common := addCommonFlags(fs)
	addrFlag := fs.String("addr", "", "listen address (default from config, :8080)")
	pathFlag := fs.String("upload-path", "", "directory recordings are stored under")
	fs.Parse(args)

	cfg, err := common.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Close()

	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if *pathFlag != "" {
		cfg.Server.UploadPath = *pathFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	store, err := server.NewStore(cfg.Server.UploadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	tr, err := transcriber.New(cfg.Transcription.GroqAPIKey, cfg.Transcription.OpenAIAPIKey)
	switch {
	case errors.Is(err, transcriber.ErrNoProvider):
		log.Warn("transcription disabled: no provider key")
		fmt.Fprintln(os.Stderr, "Warning: transcription disabled (set GROQ_API_KEY or OPENAI_API_KEY)")
		tr = nil
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	default:
		tr.SetLanguage(cfg.Transcription.Language)
	}

	tl := translate.New(cfg.Translation.DeepLAPIKey, cfg.Translation.SourceLanguage, cfg.Translation.Pseudo)
	log.Infof("translation: provider=%s targets=%v", tl.Name(), cfg.Translation.TargetLanguages)

	srv := server.New(server.Options{
		Store:           store,
		Transcriber:     tr,
		AllowedTypes:    cfg.Server.AllowedTypes,
		MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
		Translator:      tl,
		SourceLanguage:  cfg.Translation.SourceLanguage,
		TargetLanguages: cfg.Translation.TargetLanguages,
	})

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	fmt.Printf("scribe %s listening on %s (recordings in %s)\n", version, cfg.Server.Addr, cfg.Server.UploadPath)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		log.Errorf("server: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Info("server_stopped")
	return 0
}
