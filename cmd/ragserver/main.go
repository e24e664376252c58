package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ragserver/internal/chunker"
	"ragserver/internal/config"
	"ragserver/internal/engine"
	embopenai "ragserver/internal/embedding/openai"
	"ragserver/internal/extractor"
	"ragserver/internal/retriever"
	"ragserver/internal/server"
	"ragserver/internal/synthesizer"
	"ragserver/internal/vectorstore"
	"ragserver/internal/vectorstore/chroma"
	"ragserver/internal/vectorstore/memory"
	"ragserver/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragserver/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// A missing LLM credential is a startup error, not a runtime one.
	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		log.Fatalf("missing API key: set %s in the environment or .env", cfg.LLM.APIKeyEnv)
	}
	embedKey := os.Getenv(cfg.Embedder.APIKeyEnv)
	if embedKey == "" {
		log.Fatalf("missing API key: set %s in the environment or .env", cfg.Embedder.APIKeyEnv)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	emb, err := embopenai.New(embopenai.Config{
		APIKey:  embedKey,
		BaseURL: cfg.Embedder.BaseURL,
		Model:   cfg.Embedder.Model,
		Timeout: time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
	})
	if err != nil {
		logger.Fatal("embedder init failed", zap.Error(err))
	}

	var store vectorstore.Store
	switch cfg.VectorStore.Type {
	case "memory", "":
		store, err = memory.New(cfg.VectorStore.Collection, cfg.VectorStore.PersistDir)
		if err != nil {
			logger.Fatal("memory store init failed", zap.Error(err))
		}
	case "chroma":
		if cfg.VectorStore.Chroma == nil {
			logger.Fatal("chroma config missing")
		}
		store = chroma.New(chroma.Config{
			URL:        cfg.VectorStore.Chroma.URL,
			Collection: cfg.VectorStore.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Chroma.TimeoutSecs) * time.Second,
		})
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			logger.Fatal("qdrant config missing")
		}
		store = qdrant.New(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		logger.Fatal("unknown vector store", zap.String("type", cfg.VectorStore.Type))
	}

	ch, err := chunker.NewWordChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		logger.Fatal("chunker init failed", zap.Error(err))
	}

	chatCfg := openai.DefaultConfig(apiKey)
	if cfg.LLM.BaseURL != "" {
		chatCfg.BaseURL = cfg.LLM.BaseURL
	}
	synth := synthesizer.New(openai.NewClientWithConfig(chatCfg), synthesizer.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})

	eng := engine.New(
		extractor.New(),
		ch,
		emb,
		store,
		retriever.New(emb, store),
		synth,
		cfg.VectorStore.Collection,
		apiKey != "",
		logger.Named("engine"),
	)

	srv := server.New(eng, cfg.Server.UploadDir, logger.Named("server"))
	logger.Info("starting server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("collection", cfg.VectorStore.Collection))
	if err := srv.Start(cfg.Server.Addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
