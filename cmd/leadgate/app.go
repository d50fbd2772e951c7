package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	cfamqp "github.com/Strob0t/leadgate/internal/adapter/amqp"
	"github.com/Strob0t/leadgate/internal/adapter/cacheddir"
	"github.com/Strob0t/leadgate/internal/adapter/memory"
	cfnats "github.com/Strob0t/leadgate/internal/adapter/nats"
	"github.com/Strob0t/leadgate/internal/adapter/natskv"
	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
	"github.com/Strob0t/leadgate/internal/adapter/postgres"
	cfredis "github.com/Strob0t/leadgate/internal/adapter/redis"
	"github.com/Strob0t/leadgate/internal/adapter/ristretto"
	"github.com/Strob0t/leadgate/internal/adapter/tiered"
	"github.com/Strob0t/leadgate/internal/config"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/port/cache"
	"github.com/Strob0t/leadgate/internal/port/database"
	"github.com/Strob0t/leadgate/internal/port/directory"
	"github.com/Strob0t/leadgate/internal/port/messagequeue"
	"github.com/Strob0t/leadgate/internal/resilience"
	"github.com/Strob0t/leadgate/internal/service"
	"github.com/Strob0t/leadgate/internal/workpool"
)

// app is the wired dependency graph shared by every subcommand.
type app struct {
	cfg    *config.Config
	policy actor.Policy

	pool      *pgxpool.Pool
	store     database.Store
	directory directory.Directory
	pgDir     *postgres.Directory
	queue     messagequeue.Queue
	natsQueue *cfnats.Queue
	cache     cache.Cache
	metrics   *cfotel.Metrics

	leads   *service.LeadService
	gateway *service.AssignmentGateway
	binder  *service.AssignmentBinder
	dedup   *service.DedupIndexer
	worker  *service.RepairWorker

	closers []func()
}

// appOptions selects the optional parts of the graph.
type appOptions struct {
	queue bool // connect the repair queue; without it repairs run inline
	cache bool // put the directory behind the lookup cache
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, policy: cfg.Access.Policy()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if opts.queue {
		if err := a.initQueue(ctx); err != nil {
			return nil, err
		}
	}
	if opts.cache {
		if err := a.initCache(ctx); err != nil {
			return nil, err
		}
		a.directory = cacheddir.New(a.directory, a.cache, cfg.Cache.TTL)
	}

	m, err := cfotel.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.metrics = m

	a.binder = service.NewAssignmentBinder(a.store, workpool.New(cfg.Binder.ResyncConcurrency))
	a.binder.SetMetrics(m)

	a.dedup = service.NewDedupIndexer(a.store, a.queue)
	a.dedup.SetBreaker(resilience.NewBreaker("repair-publish", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	a.dedup.SetMetrics(m)

	a.gateway = service.NewAssignmentGateway(a.store, a.binder, a.policy)
	a.gateway.SetMetrics(m)

	vis := service.NewVisibilityFilter(a.policy, a.store)
	a.leads = service.NewLeadService(a.store, a.policy, service.NewFieldGuard(a.policy), vis, a.dedup, a.binder)
	a.leads.SetMetrics(m)

	if a.queue != nil {
		a.worker = service.NewRepairWorker(a.queue, a.dedup, service.RetryPolicy{
			Attempts: cfg.Queue.RetryAttempts,
			Base:     cfg.Queue.BackoffBase,
			Max:      cfg.Queue.BackoffMax,
		})
		a.worker.SetMetrics(m)
	}
	return a, nil
}

func (a *app) initStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "memory":
		dir := memory.NewDirectory()
		for _, id := range a.cfg.Access.PrivilegedUsers {
			dir.Put(id, nil)
		}
		a.store = memory.NewStore()
		a.directory = dir
		slog.Warn("using in-memory store, data is lost on exit")
		return nil
	default:
		pool, err := postgres.NewPool(ctx, a.cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		a.store = postgres.NewStore(pool)
		a.pgDir = postgres.NewDirectory(pool, a.cfg.Access.PipelineKey)
		a.directory = a.pgDir
		slog.Info("postgres connected")
		return nil
	}
}

func (a *app) initQueue(ctx context.Context) error {
	retries := a.cfg.Queue.MaxDeliveries - 1
	switch a.cfg.Queue.Driver {
	case "amqp":
		q, err := cfamqp.Connect(ctx, a.cfg.AMQP.URL,
			cfamqp.WithExchange(a.cfg.AMQP.Exchange),
			cfamqp.WithMaxRetries(retries),
		)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		a.queue = q
		a.closers = append(a.closers, func() { _ = q.Close() })
	default:
		q, err := a.connectNATS(ctx)
		if err != nil {
			return err
		}
		a.queue = q
	}
	return nil
}

// connectNATS returns the shared NATS connection, dialing it on first use.
func (a *app) connectNATS(ctx context.Context) (*cfnats.Queue, error) {
	if a.natsQueue != nil {
		return a.natsQueue, nil
	}
	q, err := cfnats.Connect(ctx, a.cfg.NATS.URL,
		cfnats.WithStream(a.cfg.NATS.Stream),
		cfnats.WithMaxRetries(a.cfg.Queue.MaxDeliveries-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	a.natsQueue = q
	a.closers = append(a.closers, func() { _ = q.Close() })
	return q, nil
}

func (a *app) initCache(ctx context.Context) error {
	l1, err := ristretto.New(a.cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache l1: %w", err)
	}
	a.closers = append(a.closers, l1.Close)

	var l2 cache.Cache
	switch a.cfg.Cache.L2 {
	case "natskv":
		q, err := a.connectNATS(ctx)
		if err != nil {
			return err
		}
		kv, err := q.KeyValue(ctx, a.cfg.Cache.L2Bucket, a.cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("cache l2: %w", err)
		}
		l2 = natskv.New(kv)
	case "redis":
		r, err := cfredis.Connect(ctx, a.cfg.Redis.URL, "leadgate:")
		if err != nil {
			return fmt.Errorf("cache l2: %w", err)
		}
		a.closers = append(a.closers, func() { _ = r.Close() })
		l2 = r
	}

	if l2 == nil {
		a.cache = l1
	} else {
		a.cache = tiered.New(l1, l2, a.cfg.Cache.TTL)
	}
	slog.Info("directory cache ready", "l1_mb", a.cfg.Cache.L1MaxSizeMB, "l2", a.cfg.Cache.L2)
	return nil
}

// storePing checks the record store when it supports it.
func (a *app) storePing(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *app) queuePing(context.Context) error {
	if a.queue == nil || a.queue.IsConnected() {
		return nil
	}
	return errors.New("queue disconnected")
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
