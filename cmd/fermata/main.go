// Package main is the entry point for the Fermata media player backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/config"
	"github.com/fermata-audio/fermata/internal/folders"
	"github.com/fermata-audio/fermata/internal/infra/mpd"
	"github.com/fermata-audio/fermata/internal/library"
	"github.com/fermata-audio/fermata/internal/netstatus"
	"github.com/fermata-audio/fermata/internal/player"
	"github.com/fermata-audio/fermata/internal/playlist"
	"github.com/fermata-audio/fermata/internal/prefs"
	"github.com/fermata-audio/fermata/internal/scrobble"
	"github.com/fermata-audio/fermata/internal/store"
	"github.com/fermata-audio/fermata/internal/transport/socketio"
	"github.com/fermata-audio/fermata/internal/version"
	"github.com/fermata-audio/fermata/internal/watcher"
)

func main() {
	// Command line flags; anything set here overrides the config file.
	configPath := flag.String("config", "config.toml", "Path to config file")
	port := flag.String("port", "", "HTTP server port (overrides config)")
	staticDir := flag.String("static", "", "Directory to serve static files from (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *debug || cfg.Logging.Level == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *staticDir != "" {
		cfg.Server.StaticDir = *staticDir
	}

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Personal Media Player Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Server.Port).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Bool("password_set", cfg.MPD.Password != "").
		Str("database", cfg.Library.DatabasePath).
		Msg("Configuration")

	// Create MPD client
	mpdClient := mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := mpdClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}
	defer mpdClient.Close()

	if err := mpdClient.Ping(); err != nil {
		log.Fatal().Err(err).Msg("MPD ping failed")
	}
	log.Info().Msg("MPD connection verified")

	// Open the library store
	if err := os.MkdirAll(filepath.Dir(cfg.Library.DatabasePath), 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}
	db := store.NewDB(cfg.Library.DatabasePath)
	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open library database")
	}
	defer db.Close()
	dao := store.NewDAO(db)

	prefStore, err := prefs.NewStore(cfg.Library.PrefsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open preference store")
	}

	// Last.fm client and scrobble reporter
	lastfm := scrobble.NewClient(cfg.LastFM.APIKey, cfg.LastFM.APISecret)
	reporter := scrobble.NewReporter(lastfm, prefStore)

	network := netstatus.NewChecker()

	// Library scanner over the MPD catalog
	catalog := library.NewMPDCatalog(mpdClient)
	scanner := library.NewScanner(catalog, db, dao, prefStore)
	scanner.SetArtSources(lastfm, mpdClient, network)

	// Playback controller
	ctrl := player.NewController(mpdClient, player.WithScrobbler(reporter))
	defer ctrl.Close()

	browser := folders.NewBrowser(dao, ctrl)
	playlists := playlist.NewService(dao)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl.Start(ctx)

	if cfg.Library.ScanOnStartup {
		go func() {
			if err := scanner.Scan(ctx); err != nil {
				log.Error().Err(err).Msg("Startup scan failed")
			}
		}()
	}

	if cfg.Library.WatchForChanges && cfg.Library.MusicDir != "" {
		w := watcher.New(cfg.Library.MusicDir, func() {
			go func() {
				if err := scanner.Scan(ctx); err != nil {
					log.Debug().Err(err).Msg("Watcher-triggered scan skipped")
				}
			}()
		})
		if err := w.Start(ctx); err != nil {
			log.Warn().Err(err).Str("dir", cfg.Library.MusicDir).Msg("Music directory watch disabled")
		}
	}

	// Create Socket.io server
	socketServer, err := socketio.NewServer(socketio.Deps{
		Player:    ctrl,
		Scanner:   scanner,
		DB:        db,
		DAO:       dao,
		Browser:   browser,
		Playlists: playlists,
		Prefs:     prefStore,
		LastFM:    lastfm,
		Network:   network,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	socketServer.Start(ctx)
	socketServer.StartNetworkWatcher(ctx)

	// Setup HTTP server
	mux := http.NewServeMux()

	// Socket.io endpoint
	mux.Handle("/socket.io/", socketServer)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := mpdClient.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","mpd":"disconnected"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","mpd":"connected"}`))
	})

	// Version endpoint
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	// Album art endpoint
	mux.HandleFunc("/albumart", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "path parameter required", http.StatusBadRequest)
			return
		}

		// Try embedded picture first, then an art file in the song's directory.
		data, err := mpdClient.ReadPicture(path)
		if err != nil {
			data, err = mpdClient.AlbumArt(path)
			if err != nil {
				log.Debug().Err(err).Str("path", path).Msg("Album art not found")
				http.Error(w, "album art not found", http.StatusNotFound)
				return
			}
		}

		w.Header().Set("Content-Type", imageContentType(data))
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write(data)
	})

	// Network status endpoint
	mux.HandleFunc("/api/v1/network", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(network.Current())
	})

	// Playback state endpoint (REST fallback)
	mux.HandleFunc("/api/v1/getState", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ctrl.Snapshot())
	})

	// Serve static files if directory specified (SPA mode)
	if cfg.Server.StaticDir != "" {
		log.Info().Str("dir", cfg.Server.StaticDir).Msg("Serving static files")
		dir := cfg.Server.StaticDir
		fs := http.FileServer(http.Dir(dir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := filepath.Join(dir, r.URL.Path)
			if r.URL.Path == "/" {
				path = filepath.Join(dir, "index.html")
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				// SPA routing: unknown paths fall back to index.html.
				http.ServeFile(w, r, filepath.Join(dir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		})
	}

	// Start HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}

// imageContentType sniffs the image format from its magic bytes.
func imageContentType(data []byte) string {
	if len(data) >= 8 {
		switch {
		case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
			return "image/png"
		case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46:
			return "image/gif"
		case data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46:
			return "image/webp"
		}
	}
	return "image/jpeg"
}
