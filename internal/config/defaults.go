package config

const (
	defaultVideosDir              = "videos"
	defaultValidationVideosDir    = "validation_videos"
	defaultValidationGTsDir       = "validation_gts"
	defaultDataDir                = "~/.local/share/annotator"
	defaultFrameExtension         = ".jpeg"
	defaultFramePadding           = 5
	defaultAnnotatorsPerClip      = 5
	defaultClipsPerBlock          = 15
	defaultResume                 = "count"
	defaultSaturation             = "last_clip"
	defaultIoUThreshold           = 0.5
	defaultScoringWorkers         = 4
	defaultStorageBackend         = "sqlite"
	defaultStorageBatchSize       = 1
	defaultPostgresHost           = "localhost"
	defaultPostgresPort           = "5432"
	defaultPostgresDBName         = "video_annotations"
	defaultReservationBackend     = "none"
	defaultRedisAddress           = "localhost:6379"
	defaultRedisPrefix            = "annotator:slots:"
	defaultRedisTimeoutSeconds    = 5
	defaultServerBind             = "0.0.0.0:5000"
	defaultSessionLifetimeDays    = 181
	defaultShutdownTimeoutSeconds = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VideosDir:           defaultVideosDir,
			ValidationVideosDir: defaultValidationVideosDir,
			ValidationGTsDir:    defaultValidationGTsDir,
			DataDir:             defaultDataDir,
		},
		Corpus: Corpus{
			FrameExtension: defaultFrameExtension,
			FramePadding:   defaultFramePadding,
		},
		Distribution: Distribution{
			AnnotatorsPerClip: defaultAnnotatorsPerClip,
			ClipsPerBlock:     defaultClipsPerBlock,
			Resume:            defaultResume,
			Saturation:        defaultSaturation,
		},
		Scoring: Scoring{
			IoUThreshold: defaultIoUThreshold,
			Workers:      defaultScoringWorkers,
		},
		Storage: Storage{
			Backend:   defaultStorageBackend,
			BatchSize: defaultStorageBatchSize,
			Postgres: Postgres{
				Host:   defaultPostgresHost,
				Port:   defaultPostgresPort,
				DBName: defaultPostgresDBName,
			},
		},
		Reservation: Reservation{
			Backend: defaultReservationBackend,
			Redis: Redis{
				Address:        defaultRedisAddress,
				Prefix:         defaultRedisPrefix,
				TimeoutSeconds: defaultRedisTimeoutSeconds,
			},
		},
		Server: Server{
			Bind:                   defaultServerBind,
			SessionLifetimeDays:    defaultSessionLifetimeDays,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
