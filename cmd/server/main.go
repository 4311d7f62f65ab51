package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/config"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/jobs"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/metrics"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/music"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/server"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/speech"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/storage"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "healing-audio-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	lyrics := flag.String("lyrics", "", "Generate one song from these lyrics and exit")
	title := flag.String("title", "Healing Song", "Song title, also used as the file name")
	speak := flag.String("speak", "", "Synthesize this message as speech and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without credentials)
	logger.Info("Configuration loaded",
		slog.String("music_base_url", cfg.Music.BaseURL),
		slog.Bool("music_api_key_set", cfg.Music.APIKey != ""),
		slog.Int("max_attempts", cfg.Music.MaxAttempts),
		slog.Duration("poll_interval", cfg.Music.GetPollIntervalDuration()),
		slog.Duration("poll_budget", cfg.Music.GetPollBudget()),
		slog.String("music_output_dir", cfg.Music.OutputDir),
		slog.Bool("speech_api_key_set", cfg.Speech.APIKey != ""),
		slog.String("speech_output_dir", cfg.Speech.OutputDir),
		slog.Bool("s3_mirror", cfg.Storage.Enabled()),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	musicSink, speechSink, err := initSinks(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	musicClient := music.NewClient(music.Config{
		BaseURL:      cfg.Music.BaseURL,
		APIKey:       cfg.Music.APIKey,
		Timeout:      cfg.Music.GetRequestTimeoutDuration(),
		Model:        cfg.Music.Model,
		Style:        cfg.Music.Style,
		Instrumental: cfg.Music.Instrumental,
		CallbackURL:  cfg.Music.CallbackURL,
	}, logger, appMetrics)

	generator := music.NewGenerator(musicClient, music.GeneratorConfig{
		InitialDelay: cfg.Music.GetInitialDelayDuration(),
		Poll: music.PollerConfig{
			MaxAttempts: cfg.Music.MaxAttempts,
			Interval:    cfg.Music.GetPollIntervalDuration(),
		},
		Fetch: music.FetcherConfig{
			Timeout:     cfg.Music.GetDownloadTimeoutDuration(),
			Parallelism: cfg.Music.DownloadParallel,
		},
	}, musicSink, logger, appMetrics)

	speechClient := speech.NewClient(speech.Config{
		Endpoint:     cfg.Speech.Endpoint,
		APIKey:       cfg.Speech.APIKey,
		Model:        cfg.Speech.Model,
		Voice:        cfg.Speech.Voice,
		Timeout:      cfg.Speech.GetTimeoutDuration(),
		MaxRetries:   cfg.Speech.MaxRetries,
		RetryBackoff: cfg.Speech.GetRetryBackoffDuration(),
	}, speechSink, logger, appMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *lyrics != "" || *speak != "" {
		os.Exit(runOnce(ctx, generator, speechClient, *lyrics, *title, *speak))
	}

	if !cfg.HTTP.Enabled {
		logger.Error("HTTP API is disabled and no -lyrics or -speak was given; nothing to do")
		os.Exit(1)
	}

	registry := jobs.NewRegistry(cfg.Jobs.GetRetentionDuration(), logger, appMetrics)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTP.Port,
		Address:        cfg.HTTP.Address,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, server.Deps{
		Registry: registry,
		Songs:    generator,
		Speech:   speechClient,
		Metrics:  appMetrics,
		Gatherer: prometheus.DefaultGatherer,
	}, logger)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	<-ctx.Done()
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Cancel running generations and wait for them to record their results
	registry.Stop()

	logger.Info("Service stopped")
}

// runOnce performs the requested generations synchronously and returns the exit code.
func runOnce(ctx context.Context, songs *music.Generator, voice *speech.Client, lyrics, title, message string) int {
	code := 0

	if lyrics != "" {
		res := songs.Generate(ctx, music.SongRequest{Lyrics: lyrics, Title: title})
		fmt.Println(res.Message())
		if res.Kind != music.ResultSuccess {
			code = 1
		}
	}

	if message != "" {
		saved, err := voice.Synthesize(ctx, message, music.SanitizeName(title))
		if err != nil {
			fmt.Printf("Error generating audio: %v\n", err)
			code = 1
		} else {
			fmt.Printf("Successfully generated audio and saved it to %s\n", saved)
		}
	}

	return code
}

// initSinks creates the artifact stores for songs and speech, mirroring both to
// S3 when a bucket is configured.
func initSinks(cfg *config.Config, logger *slog.Logger) (storage.Sink, storage.Sink, error) {
	var musicSink storage.Sink = storage.NewLocal(cfg.Music.OutputDir)
	var speechSink storage.Sink = storage.NewLocal(cfg.Speech.OutputDir)

	if !cfg.Storage.Enabled() {
		return musicSink, speechSink, nil
	}

	uploader, err := storage.NewS3Uploader(cfg.Storage.S3Region)
	if err != nil {
		return nil, nil, err
	}

	musicSink = storage.NewMirror(musicSink, uploader, storage.S3Location{
		Bucket: cfg.Storage.S3Bucket,
		Prefix: path.Join(cfg.Storage.S3Prefix, "music"),
	}, logger)
	speechSink = storage.NewMirror(speechSink, uploader, storage.S3Location{
		Bucket: cfg.Storage.S3Bucket,
		Prefix: path.Join(cfg.Storage.S3Prefix, "speech"),
	}, logger)

	logger.Info("S3 mirror enabled",
		slog.String("bucket", cfg.Storage.S3Bucket),
		slog.String("region", cfg.Storage.S3Region),
		slog.String("prefix", cfg.Storage.S3Prefix),
	)

	return musicSink, speechSink, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
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

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
