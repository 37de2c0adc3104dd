package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/aprskalo1/UMS/internal/audio"
	"github.com/aprskalo1/UMS/internal/config"
	"github.com/aprskalo1/UMS/internal/embedding"
	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/mapping"
	"github.com/aprskalo1/UMS/internal/media/clip"
	"github.com/aprskalo1/UMS/internal/queue"
	"github.com/aprskalo1/UMS/internal/services"
	"github.com/aprskalo1/UMS/internal/services/featureapi"
	"github.com/aprskalo1/UMS/internal/services/snapshot"
	"github.com/aprskalo1/UMS/internal/services/ytdlp"
	"github.com/aprskalo1/UMS/internal/vectorstore"
	"github.com/aprskalo1/UMS/internal/workflow"
)

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		if c.flags.verbose {
			cfg.Logging.Level = "debug"
		}
		if format := strings.ToLower(strings.TrimSpace(c.flags.logFormat)); format != "" {
			if format != "console" && format != "json" {
				c.configErr = services.Wrap(services.ErrConfiguration, "config", "log format",
					fmt.Sprintf("--log-format must be console or json, got %q", c.flags.logFormat), nil)
				return
			}
			cfg.Logging.Format = format
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.configPath)
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) withQueue(ctx context.Context, fn func(queue.Backend) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (c *commandContext) openIndex() (*vectorstore.Index, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return vectorstore.Load(cfg.Paths.IndexPath, cfg.Embedding.Dimension, vectorstore.WithLogger(logger))
}

func (c *commandContext) openMapping(ctx context.Context) (*mapping.Composite, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	store, err := mapping.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (c *commandContext) featureClient() (*featureapi.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return featureapi.NewClient(featureapi.Config{
		BaseURL: cfg.Embedding.ExtractorURL,
		Timeout: cfg.ExtractorTimeout(),
	})
}

// pipeline owns every collaborator a workflow.Manager drives.
type pipeline struct {
	manager    *workflow.Manager
	queue      queue.Backend
	features   *featureapi.Client
	aggregator *embedding.Aggregator
	index      *vectorstore.Index
	mapping    *mapping.Composite
}

func (p *pipeline) Close() {
	if p.aggregator != nil {
		p.aggregator.Close()
	}
	if p.mapping != nil {
		_ = p.mapping.Close()
	}
	if p.queue != nil {
		_ = p.queue.Close()
	}
}

// buildPipeline wires the worker. withQueue false skips the queue and resolver
// for local ingestion.
func (c *commandContext) buildPipeline(ctx context.Context, withQueue bool) (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	p := &pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	if p.features, err = c.featureClient(); err != nil {
		return nil, err
	}
	if err := embedding.CheckDimension(ctx, p.features, cfg.Embedding.Dimension); err != nil {
		return nil, err
	}
	p.aggregator, err = embedding.NewAggregator(p.features, embedding.Options{
		Mode:          cfg.Embedding.Mode,
		Dimension:     cfg.Embedding.Dimension,
		WindowSeconds: cfg.Embedding.WindowSeconds,
		StrideSeconds: cfg.Embedding.StrideSeconds,
		Workers:       cfg.Embedding.WindowWorkers,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "embed", "aggregator", "", err)
	}

	normalizer, err := audio.NewNormalizer(audio.Options{
		SampleRate:       cfg.Audio.SampleRate,
		TopDB:            cfg.Audio.TopDB,
		TargetDBFS:       cfg.Audio.TargetDBFS,
		Denoise:          cfg.Audio.Denoise,
		DenoiseThreshold: cfg.Audio.DenoiseThreshold,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "normalize", "new normalizer", "", err)
	}
	extractor, err := clip.NewExtractor(clip.Options{
		FFmpegBinary:      cfg.Clip.FFmpegBinary,
		TempDir:           cfg.Paths.TempDir,
		SampleRate:        cfg.Audio.SampleRate,
		ReconnectDelayMax: cfg.Clip.ReconnectDelayMax,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "new extractor", "", err)
	}

	if p.index, err = c.openIndex(); err != nil {
		return nil, err
	}
	if p.mapping, err = c.openMapping(ctx); err != nil {
		return nil, err
	}

	deps := workflow.Deps{
		Extractor:  extractor,
		Normalizer: normalizer,
		Embedder:   p.aggregator,
		Index:      p.index,
		Mapping:    p.mapping,
		Logger:     logger,
	}
	if cfg.Snapshot.Enabled {
		deps.Snapshot = snapshot.NewFromConfig(cfg, logger)
	}
	if withQueue {
		if p.queue, err = queue.Open(ctx, cfg); err != nil {
			return nil, err
		}
		resolver, err := ytdlp.New(cfg.Resolver.Binary,
			ytdlp.WithPlayerClient(cfg.Resolver.PlayerClient),
			ytdlp.WithNetwork(cfg.Resolver.Retries, cfg.Resolver.SocketTimeout),
		)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "resolve", "new resolver", "", err)
		}
		deps.Queue = p.queue
		deps.Resolver = resolver
	}

	p.manager, err = workflow.NewManager(deps, workflow.Options{
		BatchLimit:         cfg.Queue.BatchLimit,
		PollInterval:       cfg.PollInterval(),
		DefaultClipSeconds: cfg.Clip.DefaultSeconds,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return p, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func requireArg(args []string, name string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return strings.TrimSpace(args[0]), nil
}
