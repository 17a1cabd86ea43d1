package cli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/kioku-ai/kioku/logging"
	"github.com/kioku-ai/kioku/memory"
	"github.com/kioku-ai/kioku/memory/embedder/gemini"
	"github.com/kioku-ai/kioku/memory/embedder/mock"
	chromemstore "github.com/kioku-ai/kioku/memory/store/chromem"
)

// config holds configuration values collected from flags, the
// environment, and an optional YAML file.
type config struct {
	dataDir    string
	collection string
	logLevel   string
	configFile string

	// Embedding provider
	embedderKind   string
	geminiAPIKey   string
	embeddingModel string
	modelPath      string
	tokenizerPath  string
	onnxLibrary    string
	dimensions     int64
	batchDelayMS   int64

	// Retrieval
	topK      int64
	threshold float64
	cacheSize int64
}

// globalFlags returns common flags shared across commands.
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "data-dir",
			Aliases:     []string{"d"},
			Usage:       "Directory for the vector database and session file",
			Value:       "./data",
			Sources:     cli.EnvVars("KIOKU_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Vector index collection name",
			Value:       "kioku_memory",
			Sources:     cli.EnvVars("KIOKU_COLLECTION"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "embedder",
			Aliases:     []string{"e"},
			Usage:       "Embedding provider: gemini, onnx, or mock",
			Value:       "mock",
			Sources:     cli.EnvVars("KIOKU_EMBEDDER"),
			Destination: &cfg.embedderKind,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (gemini embedder)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name (gemini embedder)",
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "model-path",
			Usage:       "ONNX model file (onnx embedder)",
			Sources:     cli.EnvVars("KIOKU_MODEL_PATH"),
			Destination: &cfg.modelPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-path",
			Usage:       "tokenizer.json file (onnx embedder)",
			Sources:     cli.EnvVars("KIOKU_TOKENIZER_PATH"),
			Destination: &cfg.tokenizerPath,
		},
		&cli.StringFlag{
			Name:        "onnx-library",
			Usage:       "Path to libonnxruntime (onnx embedder)",
			Sources:     cli.EnvVars("KIOKU_ONNX_LIBRARY"),
			Destination: &cfg.onnxLibrary,
		},
		&cli.IntFlag{
			Name:        "dimensions",
			Usage:       "Embedding vector size",
			Value:       384,
			Sources:     cli.EnvVars("KIOKU_DIMENSIONS"),
			Destination: &cfg.dimensions,
		},
		&cli.IntFlag{
			Name:        "batch-delay-ms",
			Usage:       "Inter-item delay for remote batch embedding",
			Value:       100,
			Sources:     cli.EnvVars("KIOKU_BATCH_DELAY_MS"),
			Destination: &cfg.batchDelayMS,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "Default number of results per query",
			Value:       10,
			Sources:     cli.EnvVars("KIOKU_TOP_K"),
			Destination: &cfg.topK,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Default minimum cosine similarity for results",
			Value:       0.7,
			Sources:     cli.EnvVars("KIOKU_SIMILARITY_THRESHOLD"),
			Destination: &cfg.threshold,
		},
		&cli.IntFlag{
			Name:        "cache-size",
			Usage:       "Embedding cache capacity (entries)",
			Value:       1000,
			Sources:     cli.EnvVars("KIOKU_CACHE_SIZE"),
			Destination: &cfg.cacheSize,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level: debug, info, warn, error",
			Value:       "info",
			Sources:     cli.EnvVars("KIOKU_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "YAML config file; flags and env take precedence",
			Sources:     cli.EnvVars("KIOKU_CONFIG"),
			Destination: &cfg.configFile,
		},
	}
}

// fileConfig mirrors the flag set for the optional YAML file.
type fileConfig struct {
	DataDir        string  `yaml:"data_dir"`
	Collection     string  `yaml:"collection"`
	Embedder       string  `yaml:"embedder"`
	GeminiAPIKey   string  `yaml:"gemini_api_key"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ModelPath      string  `yaml:"model_path"`
	TokenizerPath  string  `yaml:"tokenizer_path"`
	OnnxLibrary    string  `yaml:"onnx_library"`
	Dimensions     int64   `yaml:"dimensions"`
	TopK           int64   `yaml:"top_k"`
	Threshold      float64 `yaml:"similarity_threshold"`
	CacheSize      int64   `yaml:"cache_size"`
	LogLevel       string  `yaml:"log_level"`
}

// applyFile merges YAML values under anything set explicitly by flag
// or environment.
func (cfg *config) applyFile(c *cli.Command) error {
	if cfg.configFile == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.configFile)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configFile))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configFile))
	}

	merge := func(flag string, dst *string, val string) {
		if !c.IsSet(flag) && val != "" {
			*dst = val
		}
	}
	merge("data-dir", &cfg.dataDir, fc.DataDir)
	merge("collection", &cfg.collection, fc.Collection)
	merge("embedder", &cfg.embedderKind, fc.Embedder)
	merge("gemini-api-key", &cfg.geminiAPIKey, fc.GeminiAPIKey)
	merge("embedding-model", &cfg.embeddingModel, fc.EmbeddingModel)
	merge("model-path", &cfg.modelPath, fc.ModelPath)
	merge("tokenizer-path", &cfg.tokenizerPath, fc.TokenizerPath)
	merge("onnx-library", &cfg.onnxLibrary, fc.OnnxLibrary)
	merge("log-level", &cfg.logLevel, fc.LogLevel)

	if !c.IsSet("dimensions") && fc.Dimensions > 0 {
		cfg.dimensions = fc.Dimensions
	}
	if !c.IsSet("top-k") && fc.TopK > 0 {
		cfg.topK = fc.TopK
	}
	if !c.IsSet("threshold") && fc.Threshold > 0 {
		cfg.threshold = fc.Threshold
	}
	if !c.IsSet("cache-size") && fc.CacheSize > 0 {
		cfg.cacheSize = fc.CacheSize
	}
	return nil
}

// setup finalizes configuration and installs the logger on the
// context.
func (cfg *config) setup(ctx context.Context, c *cli.Command) (context.Context, error) {
	if err := cfg.applyFile(c); err != nil {
		return ctx, err
	}

	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

func (cfg *config) memoryConfig() *memory.Config {
	mc := memory.DefaultConfig()
	mc.CollectionName = cfg.collection
	mc.Dimensions = int(cfg.dimensions)
	mc.TopK = int(cfg.topK)
	mc.SimilarityThreshold = cfg.threshold
	mc.CacheSize = int(cfg.cacheSize)
	return mc
}

// newEmbedder builds the configured provider wrapped in the caching
// service. Unknown provider kinds are a fatal configuration error.
func (cfg *config) newEmbedder(ctx context.Context) (*memory.EmbeddingService, error) {
	var (
		provider memory.Embedder
		err      error
	)

	switch cfg.embedderKind {
	case "gemini":
		provider, err = gemini.New(ctx, gemini.Config{
			APIKey:     cfg.geminiAPIKey,
			Model:      cfg.embeddingModel,
			Dimensions: int(cfg.dimensions),
			BatchDelay: time.Duration(cfg.batchDelayMS) * time.Millisecond,
		})
	case "onnx":
		provider, err = newONNXEmbedder(cfg)
	case "mock":
		provider = mock.New(int(cfg.dimensions))
	default:
		return nil, goerr.New("unknown embedding provider",
			goerr.T(memory.TagInitFailure), goerr.V("embedder", cfg.embedderKind))
	}
	if err != nil {
		return nil, err
	}

	return memory.NewEmbeddingService(provider, int(cfg.cacheSize))
}

// newManager wires the full component graph: index, embedder,
// session registry, manager.
func (cfg *config) newManager(ctx context.Context) (*memory.Manager, error) {
	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	index, err := chromemstore.New(filepath.Join(cfg.dataDir, "chroma"), cfg.collection)
	if err != nil {
		return nil, err
	}

	registry := memory.NewRegistry(filepath.Join(cfg.dataDir, "sessions.json"))
	registry.Restore(ctx)

	return memory.NewManager(index, embedder, registry, cfg.memoryConfig()), nil
}
