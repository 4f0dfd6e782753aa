package config

const (
	defaultConfigPath              = "~/.config/scenegen/config.toml"
	defaultStateDir                = "~/.local/share/scenegen"
	defaultWorkDir                 = "~/.local/share/scenegen/work"
	defaultOutputDir               = "~/scenes"
	defaultLogDir                  = "~/.local/share/scenegen/logs"
	defaultBackendURL              = "http://127.0.0.1:8188"
	defaultBackendConcurrency      = 1
	defaultPollIntervalSeconds     = 5
	defaultJobTimeoutSeconds       = 600
	defaultRequestTimeoutSeconds   = 30
	defaultWidth                   = 832
	defaultHeight                  = 480
	defaultFPS                     = 16
	defaultEstimatedAttemptSeconds = 180
	defaultScorerProvider          = ScorerHTTP
	defaultScorerURL               = "http://127.0.0.1:8190/evaluate"
	defaultScorerModel             = "gemini-2.5-flash"
	defaultFallbackScore           = 0.5
	defaultScorerRatePerSecond     = 1.0
	defaultScorerTimeoutSeconds    = 60
	defaultFrameMaxDimension       = 768
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultTransition              = "dissolve"
	defaultOverlapSeconds          = 0.3
	defaultMusicVolume             = 0.3
	defaultDuckThreshold           = 0.05
	defaultDuckRatio               = 8
	defaultDuckAttackMillis        = 20
	defaultDuckReleaseMillis       = 400
	defaultStorageBackend          = StorageLocal
	defaultStorageLocalDir         = "~/scenes/archive"
	defaultNotifyTimeout           = 10
	defaultAPIBind                 = "127.0.0.1:7490"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Scorer providers.
const (
	ScorerHTTP   = "http"
	ScorerGemini = "gemini"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageGCS   = "gcs"
)

// DefaultAttempts is the progressive gate applied when no table is configured:
// step count grows by five per retry while the acceptance threshold loosens.
func DefaultAttempts() []Attempt {
	return []Attempt{
		{Steps: 20, Threshold: 0.6},
		{Steps: 25, Threshold: 0.45},
		{Steps: 30, Threshold: 0.3},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Backend: Backend{
			URL:                   defaultBackendURL,
			Concurrency:           defaultBackendConcurrency,
			PollIntervalSeconds:   defaultPollIntervalSeconds,
			JobTimeoutSeconds:     defaultJobTimeoutSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			CancelOnTimeout:       true,
			Width:                 defaultWidth,
			Height:                defaultHeight,
			FPS:                   defaultFPS,
		},
		Generation: Generation{
			Attempts:                DefaultAttempts(),
			EstimatedAttemptSeconds: defaultEstimatedAttemptSeconds,
		},
		Scorer: Scorer{
			Provider:          defaultScorerProvider,
			URL:               defaultScorerURL,
			Model:             defaultScorerModel,
			FallbackScore:     defaultFallbackScore,
			RatePerSecond:     defaultScorerRatePerSecond,
			TimeoutSeconds:    defaultScorerTimeoutSeconds,
			FrameMaxDimension: defaultFrameMaxDimension,
		},
		Assembly: Assembly{
			FFmpegBinary:          defaultFFmpegBinary,
			FFprobeBinary:         defaultFFprobeBinary,
			DefaultTransition:     defaultTransition,
			DefaultOverlapSeconds: defaultOverlapSeconds,
			MusicVolume:           defaultMusicVolume,
			DuckThreshold:         defaultDuckThreshold,
			DuckRatio:             defaultDuckRatio,
			DuckAttackMillis:      defaultDuckAttackMillis,
			DuckReleaseMillis:     defaultDuckReleaseMillis,
		},
		Storage: Storage{
			Backend:  defaultStorageBackend,
			LocalDir: defaultStorageLocalDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			SceneStart:     true,
			SceneComplete:  true,
			LowQuality:     true,
			Errors:         true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
