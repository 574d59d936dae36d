package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/tunez/mpdbridge/internal/artwork"
	"github.com/tunez/mpdbridge/internal/config"
	"github.com/tunez/mpdbridge/internal/logging"
	"github.com/tunez/mpdbridge/internal/notify"
	"github.com/tunez/mpdbridge/internal/relay"
	"github.com/tunez/mpdbridge/internal/state"
	"github.com/tunez/mpdbridge/internal/ui"
)

var version = "0.1.0"

var errQuit = errors.New("monitor closed")

type flags struct {
	config   string
	host     string
	port     int
	musicDir string
	relay    string
	notify   bool
	noArt    bool
	monitor  bool
	doctor   bool
	theme    string
	verbose  int
	logFile  bool
	version  bool
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	var f flags
	fs := pflag.NewFlagSet("mpdbridge", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `mpdbridge - MPD state cache with notification, web and terminal front ends

Usage: mpdbridge [options]

Options:
%s
Examples:
  mpdbridge                          # Run notification relay against localhost:6600
  mpdbridge --monitor                # Terminal monitor
  mpdbridge --relay 127.0.0.1:6680   # Serve /status and /events over HTTP
  mpdbridge --doctor                 # Check connectivity and print status
`, fs.FlagUsages())
	}
	fs.StringVarP(&f.config, "config", "c", "", "path to config file (default: ~/.config/mpdbridge/config.toml)")
	fs.StringVar(&f.host, "host", "", "MPD host (overrides MPD_HOST)")
	fs.IntVar(&f.port, "port", 0, "MPD port (overrides MPD_PORT)")
	fs.StringVar(&f.musicDir, "music-dir", "", "local music directory for embedded art")
	fs.StringVar(&f.relay, "relay", "", "serve the HTTP/websocket relay on this address")
	fs.BoolVar(&f.notify, "notify", true, "send desktop notifications on song and playback changes")
	fs.BoolVar(&f.noArt, "no-art", false, "do not download album art")
	fs.BoolVarP(&f.monitor, "monitor", "m", false, "show the terminal monitor")
	fs.BoolVar(&f.doctor, "doctor", false, "connect once, print the status and exit")
	fs.StringVar(&f.theme, "theme", "", "monitor theme ("+strings.Join(ui.ThemeNames(), ", ")+")")
	fs.CountVarP(&f.verbose, "verbose", "v", "increase log verbosity")
	fs.BoolVar(&f.logFile, "log-file", false, "log to a file in the state directory")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &f, fs, nil
}

// apply lets command line flags override the loaded configuration.
func (f *flags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("host") {
		cfg.MPD.Host = f.host
	}
	if fs.Changed("port") {
		cfg.MPD.Port = f.port
	}
	if fs.Changed("music-dir") {
		cfg.MPD.MusicDirectory = f.musicDir
	}
	if fs.Changed("relay") {
		cfg.Relay.Enabled = f.relay != ""
		cfg.Relay.Listen = f.relay
	}
	if fs.Changed("notify") {
		cfg.Notify.Disabled = !f.notify
	}
	if f.noArt {
		cfg.Art.Disabled = true
	}
	if fs.Changed("theme") {
		if !ui.ValidTheme(f.theme) {
			return fmt.Errorf("unknown theme %q", f.theme)
		}
		cfg.UI.Theme = f.theme
	}
	cfg.Log.Level = logging.LevelForVerbosity(cfg.Log.Level, f.verbose)
	// The monitor owns the terminal.
	cfg.Log.ToFile = cfg.Log.ToFile || f.logFile || f.monitor
	return config.Validate(*cfg)
}

func main() {
	f, fs, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if f.version {
		fmt.Println("mpdbridge", version)
		return
	}

	if err := config.LoadEnv(); err != nil {
		log.Fatalf("%v", err)
	}
	cfg, resolvedPath, err := config.Load(f.config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := f.apply(fs, cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, logCloser, err := logging.Setup(logging.Options{Level: cfg.Log.Level, ToFile: cfg.Log.ToFile})
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("starting mpdbridge", slog.String("config", resolvedPath), slog.String("mpd", cfg.Addr()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.doctor {
		if err := runDoctor(ctx, os.Stdout, cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, f.monitor, logger); err != nil {
		logger.Error("mpdbridge stopped", slog.Any("err", err))
		log.Fatalf("mpdbridge: %v", err)
	}
	logger.Info("shutdown complete")
}

func stateOptions(cfg *config.Config, logger *slog.Logger) (state.Options, error) {
	opts := state.Options{
		Addr:              cfg.Addr(),
		Password:          cfg.MPD.Password,
		Logger:            logger,
		KeepaliveInterval: cfg.KeepaliveInterval(),
		RetryInterval:     cfg.RetryInterval(),
		EventBuffer:       cfg.MPD.EventBuffer,
	}
	if cfg.Art.Disabled {
		return opts, nil
	}
	cache, err := artwork.NewCache(artwork.Options{
		Dir:        cfg.Art.CacheDir,
		Strategies: artwork.DefaultStrategies(cfg.MPD.MusicDirectory),
		Logger:     logger,
	})
	if err != nil {
		return opts, err
	}
	opts.Art = cache
	return opts, nil
}

// connect retries state.New until it succeeds or ctx ends. The first failure
// is logged as an error, later ones at debug level.
func connect(ctx context.Context, opts state.Options, retry time.Duration, logger *slog.Logger) (*state.Server, error) {
	for attempt := 1; ; attempt++ {
		srv, err := state.New(ctx, opts)
		if err == nil {
			if attempt > 1 {
				logger.Info("connected to mpd", slog.Int("attempts", attempt))
			}
			return srv, nil
		}
		if attempt == 1 {
			logger.Error("cannot connect to mpd, will keep retrying", slog.String("addr", opts.Addr), slog.Any("err", err), slog.Duration("interval", retry))
		} else {
			logger.Debug("connect attempt failed", slog.Int("attempt", attempt), slog.Any("err", err))
		}
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func run(ctx context.Context, cfg *config.Config, monitor bool, logger *slog.Logger) error {
	opts, err := stateOptions(cfg, logger)
	if err != nil {
		return err
	}
	srv, err := connect(ctx, opts, cfg.RetryInterval(), logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer srv.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	if !cfg.Notify.Disabled {
		notifier := notify.New(srv, notify.Options{
			Logger:        logger,
			AppName:       cfg.Notify.AppName,
			DefaultIcon:   cfg.Notify.DefaultIcon,
			RetryInterval: cfg.RetryInterval(),
		})
		g.Go(func() error { return notifier.Run(ctx) })
	}
	if cfg.Relay.Enabled {
		web := relay.NewServer(srv, relay.Options{Logger: logger})
		g.Go(func() error { return web.ListenAndServe(ctx, cfg.Relay.Listen) })
	}
	if monitor {
		noColor := os.Getenv("NO_COLOR") != ""
		theme := ui.GetTheme(cfg.UI.Theme, noColor)
		uiOpts := ui.Options{
			ArtCols:    cfg.UI.ArtCols,
			ArtRows:    cfg.UI.ArtRows,
			VolumeStep: cfg.UI.VolumeStep,
			NoArt:      cfg.UI.NoArt || cfg.Art.Disabled,
		}
		model := ui.NewModel(srv, theme, uiOpts)
		g.Go(func() error {
			if err := ui.Run(ctx, model); err != nil {
				return err
			}
			// Leaving the monitor ends the process.
			return errQuit
		})
	}

	// Consumers subscribed above sync up from a full announcement.
	srv.Ready()
	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func runDoctor(ctx context.Context, w io.Writer, cfg *config.Config, logger *slog.Logger) error {
	fmt.Fprintln(w, "mpdbridge doctor")
	fmt.Fprintf(w, "MPD address: %s\n", cfg.Addr())

	opts, err := stateOptions(cfg, logger)
	if err != nil {
		fmt.Fprintf(w, "Art cache: ERROR - %v\n", err)
		return err
	}
	if opts.Art != nil {
		fmt.Fprintf(w, "Art cache: OK (%s)\n", opts.Art.Dir())
	} else {
		fmt.Fprintln(w, "Art cache: disabled")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv, err := state.New(ctx, opts)
	if err != nil {
		fmt.Fprintf(w, "Connection: ERROR - %v\n", err)
		return err
	}
	defer srv.Close()
	fmt.Fprintln(w, "Connection: OK")

	st := srv.Status()
	fmt.Fprintf(w, "State: %s\n", st.Playback.State)
	if st.Song.Valid {
		fmt.Fprintf(w, "Song: %s - %s (%s)\n", st.Tag("Artist"), st.Tag("Title"), st.Tag("file"))
	}
	if st.HasMixer() {
		fmt.Fprintf(w, "Volume: %d%%\n", st.Volume)
	} else {
		fmt.Fprintln(w, "Volume: no mixer")
	}
	fmt.Fprintf(w, "Loop: %s  Shuffle: %t  Queue: %d\n", st.Loop, st.Random, st.PlaylistLength)
	if st.AlbumArt != "" {
		fmt.Fprintf(w, "Album art: %s\n", st.AlbumArt)
	}
	logger.Info("doctor complete")
	return nil
}
