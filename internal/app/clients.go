package app

import (
	"context"
	"fmt"

	"github.com/yungbote/docsync-backend/internal/platform/embedding"
	"github.com/yungbote/docsync-backend/internal/platform/graph"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/platform/openai"
	"github.com/yungbote/docsync-backend/internal/platform/pandoc"
	"github.com/yungbote/docsync-backend/internal/platform/qdrant"
	"github.com/yungbote/docsync-backend/internal/realtime/bus"
)

type Clients struct {
	OpenAI    openai.Client
	Model     string
	Embedder  embedding.Embedder
	Graph     graph.Client
	Index     qdrant.Index
	Converter pandoc.Converter
	Bus       bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis (optional)
	var rbus bus.Bus
	if busCfg := bus.ConfigFromEnv(); busCfg.Enabled() {
		b, err := bus.NewRedisBus(log, busCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		rbus = b
	}

	// OpenAI
	aiCfg := openai.ConfigFromEnv()
	ai, err := openai.NewClient(log, aiCfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	embedder, err := embedding.NewCachedEmbedder(log, ai, cfg.EmbedCacheSize)
	if err != nil {
		return Clients{}, fmt.Errorf("init embedder: %w", err)
	}

	// Graph
	g, err := graph.New(log, graph.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init graph client: %w", err)
	}

	// Qdrant
	qcfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		return Clients{}, fmt.Errorf("qdrant config: %w", err)
	}
	index, err := qdrant.NewIndex(ctx, log, qcfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init qdrant index: %w", err)
	}

	// pandoc
	conv := pandoc.New(log, pandoc.ConfigFromEnv())
	if err := conv.AssertReady(ctx); err != nil {
		return Clients{}, fmt.Errorf("pandoc: %w", err)
	}

	return Clients{
		OpenAI:    ai,
		Model:     aiCfg.Model,
		Embedder:  embedder,
		Graph:     g,
		Index:     index,
		Converter: conv,
		Bus:       rbus,
	}, nil
}
