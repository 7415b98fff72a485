package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/radiowave-backend/internal/config"
	"github.com/edumarques81/radiowave-backend/internal/domain/library"
	"github.com/edumarques81/radiowave-backend/internal/domain/offline"
	"github.com/edumarques81/radiowave-backend/internal/domain/player"
	"github.com/edumarques81/radiowave-backend/internal/domain/preload"
	"github.com/edumarques81/radiowave-backend/internal/domain/shell"
	"github.com/edumarques81/radiowave-backend/internal/infra/directory"
	"github.com/edumarques81/radiowave-backend/internal/infra/librarydb"
	"github.com/edumarques81/radiowave-backend/internal/infra/mpd"
	"github.com/edumarques81/radiowave-backend/internal/infra/shellcache"
	"github.com/edumarques81/radiowave-backend/internal/transport/socketio"
	"github.com/edumarques81/radiowave-backend/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RadioWave server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if errors.Is(err, config.ErrConfigMissing) {
		log.Warn().Str("path", configPath).Msg("Config file not found, wrote a template to edit")
		return err
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	info := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", info.String())
	log.Info().Msg("  Internet radio with an offline-capable shell")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("listen", cfg.Listen).
		Str("static_dir", cfg.StaticDir).
		Str("mpd_host", cfg.Player.MPDHost).
		Int("mpd_port", cfg.Player.MPDPort).
		Str("cache_version", cfg.Cache.Version).
		Int("preload_limit", cfg.Preload.Limit).
		Msg("Configuration")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Library
	db := librarydb.NewDB(cfg.Library.DBPath)
	if err := db.Open(); err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer db.Close()
	lib := library.NewService(db, cfg.Library.MusicDir, cfg.MaxUploadBytes())

	// Directory
	userAgent := cfg.Directory.UserAgent
	if userAgent == "" {
		userAgent = info.UserAgent()
	}
	dirOpts := []directory.Option{
		directory.WithMirrors(cfg.Directory.Mirrors...),
		directory.WithUserAgent(userAgent),
		directory.WithHTTPClient(&http.Client{Timeout: cfg.DirectoryTimeout()}),
	}
	if cfg.Directory.DiscoveryURL != "" {
		dirOpts = append(dirOpts, directory.WithDiscoveryURL(cfg.Directory.DiscoveryURL))
	}
	dirClient := directory.NewClient(dirOpts...)
	if !cfg.Directory.SkipDiscovery {
		discoverMirrors(ctx, dirClient, cfg.DirectoryTimeout())
	}

	preloader := preload.New(
		preload.NewHTTPProber(&http.Client{}, userAgent),
		preload.WithLimit(cfg.Preload.Limit),
		preload.WithConcurrency(cfg.Preload.Concurrency),
		preload.WithProbeTimeout(cfg.ProbeTimeout()),
	)

	// Playback
	mpdClient := mpd.NewClient(cfg.Player.MPDHost, cfg.Player.MPDPort, cfg.Player.MPDPassword)
	if err := mpdClient.Connect(); err != nil {
		log.Warn().Err(err).Str("addr", mpdClient.Addr()).Msg("MPD not reachable yet, will retry on first command")
	}
	defer mpdClient.Close()

	var hub atomic.Pointer[socketio.Server]
	session := player.NewSession(mpd.NewSink(mpdClient),
		player.WithReporter(dirClient),
		player.WithHints(preloader),
		player.WithVolumeStore(lib),
		player.WithWatchdog(cfg.Watchdog()),
		player.WithMaxAttempts(cfg.Player.MaxAttempts),
		player.WithStateListener(func(snap player.Snapshot) {
			if s := hub.Load(); s != nil {
				s.BroadcastState(snap)
			}
		}),
	)

	// Shell origin and offline cache
	var staticServer *http.Server
	origin, err := shellOrigin(cfg)
	if err != nil {
		return err
	}
	if cfg.Cache.ShellOrigin == "" {
		staticServer, err = startStaticServer(cfg.StaticListen, cfg.StaticDir)
		if err != nil {
			return err
		}
	}

	controller, closeCache := startOffline(ctx, cfg, origin)
	defer closeCache()

	server, err := socketio.NewServer(socketio.Deps{
		Directory:       dirClient,
		Preloader:       preloader,
		Session:         session,
		Library:         lib,
		Offline:         controller,
		LocalStreamBase: localStreamBase(cfg.Listen),
		RequestTimeout:  2 * cfg.DirectoryTimeout(),
	})
	if err != nil {
		return fmt.Errorf("create socket.io server: %w", err)
	}
	defer server.Close()
	hub.Store(server)

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)

	(&api{
		hub:       server,
		facets:    dirClient,
		session:   session,
		library:   lib,
		preloader: preloader,
		offline:   controller,
		maxUpload: cfg.MaxUploadBytes(),
		health:    mpdClient.Ping,
	}).register(mux)

	if controller != nil {
		mux.Handle("/", offline.NewHandler(controller, origin))
	} else {
		mux.Handle("/", isolationMiddleware(staticHandler(cfg.StaticDir)))
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		if staticServer != nil {
			staticServer.Shutdown(shutdownCtx)
		}
	}()

	log.Info().Str("addr", cfg.Listen).Msg("HTTP server listening")
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	preloader.Wait()
	log.Info().Msg("Server stopped")
	return nil
}

func discoverMirrors(ctx context.Context, client *directory.Client, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mirrors, err := client.DiscoverMirrors(ctx)
	if err != nil {
		log.Warn().Err(err).Strs("mirrors", client.Mirrors()).Msg("Mirror discovery failed, using configured mirrors")
		return
	}
	client.SetMirrors(mirrors)
	log.Info().Int("count", len(mirrors)).Msg("Discovered directory mirrors")
}

// startStaticServer serves the shell directory on an internal address the offline
// cache fetches from.
func startStaticServer(addr, dir string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen static: %w", err)
	}

	srv := &http.Server{
		Handler:           corsMiddleware(isolationMiddleware(staticHandler(dir))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Static server error")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Str("dir", dir).Msg("Serving shell files")
	return srv, nil
}

// startOffline opens the shell cache and installs the configured version in the
// background. It returns a nil controller when the cache cannot be opened; the shell
// is then served without offline support.
func startOffline(ctx context.Context, cfg *config.Config, origin *url.URL) (*offline.Controller, func()) {
	store, err := shellcache.Open(cfg.Cache.Path, shellcache.Options{Timeout: time.Second})
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open shell cache, offline mode disabled")
		return nil, func() {}
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close shell cache")
		}
	}

	offCfg := offline.DefaultConfig(origin, shell.Manifest(cfg.Cache.Manifest))
	offCfg.Version = cfg.Cache.Version

	controller, err := offline.NewController(ctx, offCfg,
		offline.NewHTTPFetcher(&http.Client{Timeout: 30 * time.Second}, 0),
		offline.NewShellCacheAdapter(store))
	if err != nil {
		log.Error().Err(err).Msg("Failed to start offline controller, offline mode disabled")
		closeStore()
		return nil, func() {}
	}

	if st := controller.Status(); st.Serving != cfg.Cache.Version {
		go func() {
			if err := controller.Install(ctx); err != nil {
				log.Warn().Err(err).Str("version", cfg.Cache.Version).Msg("Shell install failed")
			}
		}()
	} else {
		log.Info().Str("version", st.Serving).Msg("Shell cache already active")
	}

	return controller, closeStore
}

// shellOrigin is where shell assets are fetched from: the configured remote origin,
// or the local static server.
func shellOrigin(cfg *config.Config) (*url.URL, error) {
	raw := cfg.Cache.ShellOrigin
	if raw == "" {
		raw = "http://" + loopbackAddr(cfg.StaticListen) + "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse shell origin: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		u.RawPath = ""
	}
	return u, nil
}

// localStreamBase is the URL prefix MPD uses to fetch uploaded tracks from us.
func localStreamBase(listen string) string {
	return "http://" + loopbackAddr(listen) + "/stream/local/"
}

// loopbackAddr replaces an empty or wildcard host with the loopback address.
func loopbackAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
