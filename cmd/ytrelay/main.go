package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"

	"github.com/famomatic/ytrelay/internal/muxer"
	"github.com/famomatic/ytrelay/internal/playerjs"
	"github.com/famomatic/ytrelay/internal/upstream"
	"github.com/famomatic/ytrelay/server"
)

func main() {
	var (
		addr    = flag.String("addr", "", "listen address (overrides LISTEN_ADDR)")
		ffmpeg  = flag.String("ffmpeg", "", "ffmpeg binary path (overrides FFMPEG_PATH)")
		logJSON = flag.Bool("log-json", false, "emit JSON logs instead of console output")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	godotenv.Load()

	logger := newLogger(*logJSON, *debug)

	cfg, err := server.ConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *ffmpeg != "" {
		cfg.FFmpegPath = *ffmpeg
	}

	cookie, err := cfg.ResolveCookie()
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.CookiesFile).Msg("could not load cookies")
	}

	httpClient := &http.Client{Timeout: cfg.RequestBudget}
	client := upstream.NewClient(upstream.Config{
		HTTPClient: httpClient,
		Cookie:     cookie,
		Solver:     playerjs.NewSolver(httpClient),
		Logger:     logger,
	})

	engine := muxer.NewEngine(cfg.FFmpegPath, logger)
	if !engine.Available() {
		logger.Warn().Str("path", cfg.FFmpegPath).
			Msg("ffmpeg binary not found; muxed downloads will fail")
	}

	handler := &server.Handler{
		Fetcher: client,
		Opener:  client,
		Muxer:   engine,
		Retry:   cfg.Retry,
		Budget:  cfg.RequestBudget,
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(jsonLogs, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if jsonLogs {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	out := zerolog.ConsoleWriter{Out: colorable.NewColorableStdout(), TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
