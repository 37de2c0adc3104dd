package config

const (
	defaultDataDir             = "~/.local/share/embedder"
	defaultIndexFile           = "music.index"
	defaultMappingFile         = "mapping.csv"
	defaultQueueBackend        = "sqlite"
	defaultQueueFile           = "queue.db"
	defaultBatchLimit          = 16
	defaultResolverBinary      = "yt-dlp"
	defaultPlayerClient        = "android"
	defaultResolverRetries     = 2
	defaultSocketTimeout       = 15
	defaultFFmpegBinary        = "ffmpeg"
	defaultClipSeconds         = 30
	defaultReconnectDelayMax   = 5
	defaultSampleRate          = 24000
	defaultTopDB               = 60.0
	defaultTargetDBFS          = -23.0
	defaultDenoiseThreshold    = 1.5
	defaultExtractorURL        = "http://127.0.0.1:8765"
	defaultEmbeddingDimension  = 768
	defaultEmbeddingMode       = "windowed"
	defaultWindowSeconds       = 5.0
	defaultStrideSeconds       = 2.5
	defaultWindowWorkers       = 1
	defaultMappingSQLiteFile   = "mapping.db"
	defaultMappingBadgerDir    = "mapping.badger"
	defaultSnapshotPrefix      = "embedder"
	defaultSnapshotRegion      = "us-east-1"
	defaultPollIntervalSeconds = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults. Paths that
// depend on data_dir are left blank and filled in by normalize.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Queue: Queue{
			Backend:    defaultQueueBackend,
			BatchLimit: defaultBatchLimit,
		},
		Resolver: Resolver{
			Binary:        defaultResolverBinary,
			PlayerClient:  defaultPlayerClient,
			Retries:       defaultResolverRetries,
			SocketTimeout: defaultSocketTimeout,
		},
		Clip: Clip{
			FFmpegBinary:      defaultFFmpegBinary,
			DefaultSeconds:    defaultClipSeconds,
			ReconnectDelayMax: defaultReconnectDelayMax,
		},
		Audio: Audio{
			SampleRate:       defaultSampleRate,
			TopDB:            defaultTopDB,
			TargetDBFS:       defaultTargetDBFS,
			DenoiseThreshold: defaultDenoiseThreshold,
		},
		Embedding: Embedding{
			ExtractorURL:  defaultExtractorURL,
			Dimension:     defaultEmbeddingDimension,
			Mode:          defaultEmbeddingMode,
			WindowSeconds: defaultWindowSeconds,
			StrideSeconds: defaultStrideSeconds,
			WindowWorkers: defaultWindowWorkers,
		},
		Mapping: Mapping{
			Backends: []string{"csv"},
		},
		Snapshot: Snapshot{
			Prefix: defaultSnapshotPrefix,
			Region: defaultSnapshotRegion,
		},
		Workflow: Workflow{
			PollInterval:   defaultPollIntervalSeconds,
			ExclusiveIndex: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
