package di

import (
	"net/http"

	"github.com/llmgram/llmgram/internal/ai"
	"github.com/llmgram/llmgram/internal/cache"
	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/database"
	"github.com/llmgram/llmgram/internal/history"
	"github.com/llmgram/llmgram/internal/logger"
	"github.com/llmgram/llmgram/internal/network"
	"github.com/llmgram/llmgram/internal/service"
)

type Container struct {
	Logger      logger.Logger
	DB          database.Database
	Cache       cache.Cache
	Cfg         *config.Config
	History     *history.Store
	Descriptors *ai.DescriptorSet
	Registry    *ai.AdapterRegistry
	Stats       *ai.Tracker
	Dispatcher  *ai.Dispatcher
	ChatService *service.ChatService
	HttpClient  *http.Client
}

func NewContainer(cfg *config.Config) (*Container, error) {
	logCfg := cfg.Log()
	l := logger.NewLogrusLogger(&logCfg)

	aiCfg := cfg.AI()
	if err := aiCfg.Validate(); err != nil {
		return nil, err
	}
	if len(aiCfg.Providers) == 0 {
		l.Fatal("No AI providers configured")
	}

	db, err := database.NewSQLiteDB(cfg, l)
	if err != nil {
		return nil, err
	}

	memoryCache := cache.NewMemoryCache()
	dbCache := cache.NewDBCache(db)
	c := cache.NewMultiLevelCache(memoryCache, dbCache, l)

	historyCfg := cfg.History()
	store, err := history.NewStore(history.Config{
		MaxTurns:         historyCfg.MaxTurns,
		MaxConversations: historyCfg.MaxConversations,
		Persist:          historyCfg.Persist,
	}, db, l)
	if err != nil {
		return nil, err
	}

	container := &Container{
		Logger:  l,
		DB:      db,
		Cache:   c,
		Cfg:     cfg,
		History: store,
	}

	httpCfg := network.NewDefaultHTTPClientConfig(cfg.HTTP())
	container.HttpClient = network.SetupHTTPClient(httpCfg, l)

	dispatchCfg := cfg.Dispatch()
	descriptors, err := ai.NewDescriptorSet(aiCfg.Providers, aiCfg.Tiers, dispatchCfg.DefaultTimeout, l)
	if err != nil {
		return nil, err
	}

	registry := ai.NewAdapterRegistry()
	for _, providerCfg := range aiCfg.Providers {
		descriptor, err := descriptors.Get(providerCfg.ID)
		if err != nil {
			return nil, err
		}
		providerLog := l.WithField("provider", providerCfg.ID)
		var adapter ai.Adapter

		switch providerCfg.Type {
		case ai.ProviderOpenrouter:
			adapter = ai.NewOpenRouterAdapter(
				descriptor,
				providerCfg.BaseURL,
				providerCfg.ChatURL,
				providerCfg.GetAPIKey(),
				l,
				c,
				container.HttpClient,
			)
		case ai.ProviderOpenai:
			adapter = ai.NewOpenAICompatibleAdapter(
				descriptor,
				providerCfg.BaseURL,
				providerCfg.ChatURL,
				providerCfg.GetAPIKey(),
				l,
				c,
				container.HttpClient,
			)
		case ai.ProviderLocal:
			adapter = ai.NewLocalAdapter(
				descriptor,
				providerCfg.BaseURL,
				providerCfg.ChatURL,
				l,
				container.HttpClient,
			)
		default:
			l.Error("Unsupported AI provider type: " + providerCfg.Type)
			continue
		}

		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		providerLog.WithField("type", providerCfg.Type).Info("Initialized AI provider")
	}

	stats := ai.NewTracker(descriptors, nil)
	dispatcher := ai.NewDispatcher(
		descriptors,
		registry,
		store,
		stats,
		dispatchCfg,
		aiCfg.SystemPrompt,
		nil,
		l,
	)
	chatService := service.NewChatService(dispatcher, store, stats, aiCfg.DefaultTier, l)

	container.Descriptors = descriptors
	container.Registry = registry
	container.Stats = stats
	container.Dispatcher = dispatcher
	container.ChatService = chatService

	return container, nil
}
