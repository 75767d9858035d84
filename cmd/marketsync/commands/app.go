package commands

import (
	"context"
	"fmt"

	"market-sync/internal/cache"
	"market-sync/internal/config"
	"market-sync/internal/content"
	"market-sync/internal/domain"
	"market-sync/internal/events"
	"market-sync/internal/ledger"
	"market-sync/internal/retrieval"
	"market-sync/internal/storage"
	chstore "market-sync/internal/storage/clickhouse"
	"market-sync/internal/storage/memory"
	"market-sync/internal/storage/migrations"
	pgstore "market-sync/internal/storage/postgres"
	redisstore "market-sync/internal/storage/redis"
)

// app holds the components shared by every command.
type app struct {
	actor      domain.Address
	identity   ledger.IdentityResolver
	sink       domain.ErrorSink
	gateway    *ledger.Gateway
	retriever  *retrieval.Retriever
	dispatcher *events.Dispatcher
	content    content.Store
	journal    storage.EventJournal

	closers []func()
}

// newApp wires the ledger gateway, content store and storage backends
// selected by cfg.
func newApp(ctx context.Context) (*app, error) {
	actor, err := cfg.ActingAddress()
	if err != nil {
		return nil, err
	}

	a := &app{
		actor:    actor,
		identity: ledger.StaticIdentity(actor),
		sink: func(err error) {
			logger.Printf("error: %v", err)
		},
	}

	store, err := a.openContent(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.content = store

	journal, err := a.openJournal(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.journal = journal

	rpc := ledger.NewHTTPClient(cfg.Ledger.RPCURL,
		ledger.WithTimeout(cfg.Ledger.Timeout),
		ledger.WithMaxRetries(cfg.Ledger.ReadRetries),
	)
	a.gateway = ledger.NewGateway(ledger.GatewayOptions{
		RPC:       rpc,
		Content:   content.JSONPutter{Store: store},
		ErrorSink: a.sink,
		Logger:    logger,
	})
	a.retriever = retrieval.NewRetriever(a.gateway, a.sink)
	a.dispatcher = events.NewDispatcher(events.Options{
		Fee:       a.gateway,
		ErrorSink: a.sink,
		Logger:    logger,
	})

	return a, nil
}

func (a *app) openContent(ctx context.Context) (content.Store, error) {
	var upstream content.Store
	switch cfg.Content.Backend {
	case config.ContentMemory:
		upstream = content.NewMemoryStore()
	case config.ContentNode:
		upstream = content.NewNodeStore(cfg.Content.NodeAPIURL, cfg.Content.GatewayURL)
	case config.ContentPinning:
		upstream = content.NewPinningStore(cfg.Content.PinningAPIURL, cfg.Content.GatewayURL, content.PinningCredentials{
			APIKey:    cfg.Content.PinningKey,
			APISecret: cfg.Content.PinningSecret,
		})
	default:
		return nil, fmt.Errorf("unknown content backend %q", cfg.Content.Backend)
	}

	var records storage.ContentCache
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		records = memory.NewContentCache()
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Cache.DSN, pgstore.WithMaxConns(cfg.Cache.MaxConns))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		records = pgstore.NewContentCache(pool)
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.Cache.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		records = redisstore.NewContentCache(client)
	default:
		return nil, fmt.Errorf("unknown content cache backend %q", cfg.Cache.Backend)
	}

	return content.NewCachingStore(upstream, records, logger), nil
}

func (a *app) openJournal(ctx context.Context) (storage.EventJournal, error) {
	switch cfg.Journal.Backend {
	case config.BackendMemory:
		return memory.NewEventJournal(), nil
	case config.BackendClickhouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Journal.DSN)
		if err != nil {
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		return chstore.NewEventJournal(conn), nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
	}
}

// newCache builds a reactive view over the app's gateway and dispatcher.
func (a *app) newCache() *cache.Cache {
	return cache.New(cache.Options{
		Items:          a.gateway,
		Retriever:      a.retriever,
		Content:        a.content,
		Events:         a.dispatcher,
		ActualAddress:  a.actor,
		TransientDelay: cfg.TransientDelay,
		ErrorSink:      a.sink,
		Logger:         logger,
	})
}

// Close releases storage connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
