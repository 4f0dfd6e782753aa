package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scenegen/internal/assembler"
	"scenegen/internal/assetstore"
	"scenegen/internal/config"
	"scenegen/internal/continuity"
	"scenegen/internal/deps"
	"scenegen/internal/genqueue"
	"scenegen/internal/media/ffmpeg"
	"scenegen/internal/media/ffprobe"
	"scenegen/internal/metrics"
	"scenegen/internal/notifications"
	"scenegen/internal/orchestrator"
	"scenegen/internal/quality"
	"scenegen/internal/services/genbackend"
	"scenegen/internal/services/scorer"
	"scenegen/internal/shotgen"
	"scenegen/internal/store"
)

// jobRetention keeps finished generation jobs inspectable for a while.
const jobRetention = time.Hour

// Components holds the wired scene pipeline.
type Components struct {
	Jobs         *genqueue.Queue
	Metrics      *metrics.Metrics
	Notifier     notifications.Service
	Orchestrator *orchestrator.Manager
}

// Build wires every pipeline stage from config. The caller owns the returned
// job queue and must Close it.
func Build(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*Components, error) {
	reg := metrics.New()
	notifier := notifications.NewService(cfg)

	backend := genbackend.NewClient(genbackend.Config{
		BaseURL:        cfg.Backend.URL,
		Token:          cfg.Backend.Token,
		TimeoutSeconds: cfg.Backend.RequestTimeoutSeconds,
	})
	jobs := genqueue.New(backend, genqueue.Config{
		Concurrency:     cfg.Backend.Concurrency,
		PollInterval:    cfg.PollInterval(),
		JobTimeout:      cfg.JobTimeout(),
		CancelOnTimeout: cfg.Backend.CancelOnTimeout,
		Retention:       jobRetention,
	}, genqueue.WithLogger(logger), genqueue.WithMetrics(reg))

	sc, err := scorer.New(ctx, cfg.Scorer)
	if err != nil {
		jobs.Close()
		return nil, fmt.Errorf("init scorer: %w", err)
	}
	gate := quality.NewEvaluator(sc, cfg.Scorer.FallbackScore,
		quality.WithRate(cfg.Scorer.RatePerSecond),
		quality.WithMetrics(reg),
		quality.WithLogger(logger),
	)

	ffmpegBin := deps.ResolveBinary(cfg.Assembly.FFmpegBinary, "ffmpeg")
	ffprobeBin := deps.ResolveBinary(cfg.Assembly.FFprobeBinary, "ffprobe")
	tools := ffmpeg.New(ffmpeg.WithBinary(ffmpegBin), ffmpeg.WithFPS(cfg.Backend.FPS))

	controller := shotgen.NewController(jobs, continuity.NewExtractor(tools, logger), gate,
		shotgen.WithLogger(logger),
		shotgen.WithMetrics(reg),
		shotgen.WithRender(shotgen.Render{Width: cfg.Backend.Width, Height: cfg.Backend.Height, FPS: cfg.Backend.FPS}),
	)

	asmOpts := []assembler.Option{
		assembler.WithLogger(logger),
		assembler.WithMetrics(reg),
		assembler.WithDurationProber(func(ctx context.Context, path string) (float64, error) {
			probe, err := ffprobe.Inspect(ctx, ffprobeBin, path)
			if err != nil {
				return 0, err
			}
			return probe.DurationSeconds(), nil
		}),
	}
	if len(cfg.Assembly.TTSCommand) > 0 {
		asmOpts = append(asmOpts, assembler.WithSynthesizer(assembler.NewCommandSynthesizer(cfg.Assembly.TTSCommand, nil)))
	}
	asm := assembler.New(tools, assembler.Settings{
		DefaultTransition: cfg.Assembly.DefaultTransition,
		DefaultOverlap:    cfg.Assembly.DefaultOverlapSeconds,
		MusicVolume:       cfg.Assembly.MusicVolume,
		Ducking: ffmpeg.Ducking{
			Threshold:     cfg.Assembly.DuckThreshold,
			Ratio:         cfg.Assembly.DuckRatio,
			AttackMillis:  cfg.Assembly.DuckAttackMillis,
			ReleaseMillis: cfg.Assembly.DuckReleaseMillis,
		},
		MoodMusic: cfg.MusicForMood,
	}, asmOpts...)

	mgrOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(reg),
		orchestrator.WithNotifier(notifier),
	}
	archive, err := assetstore.New(ctx, cfg.Storage)
	if err != nil {
		jobs.Close()
		return nil, fmt.Errorf("init asset store: %w", err)
	}
	mgrOpts = append(mgrOpts, orchestrator.WithArchive(archive))

	return &Components{
		Jobs:         jobs,
		Metrics:      reg,
		Notifier:     notifier,
		Orchestrator: orchestrator.New(st, controller, asm, orchestrator.SettingsFromConfig(cfg), mgrOpts...),
	}, nil
}
