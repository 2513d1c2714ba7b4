package main

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/advisor"
	"github.com/Shiki0138/hotelbooking-sub004/internal/channels/email"
	"github.com/Shiki0138/hotelbooking-sub004/internal/channels/inapp"
	pushchannel "github.com/Shiki0138/hotelbooking-sub004/internal/channels/push"
	"github.com/Shiki0138/hotelbooking-sub004/internal/channels/sms"
	"github.com/Shiki0138/hotelbooking-sub004/internal/config"
	"github.com/Shiki0138/hotelbooking-sub004/internal/dispatch"
	"github.com/Shiki0138/hotelbooking-sub004/internal/failover"
	"github.com/Shiki0138/hotelbooking-sub004/internal/health"
	"github.com/Shiki0138/hotelbooking-sub004/internal/idempotency"
	"github.com/Shiki0138/hotelbooking-sub004/internal/inbox"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
	"github.com/Shiki0138/hotelbooking-sub004/internal/queue"
	"github.com/Shiki0138/hotelbooking-sub004/internal/ratelimit"
	"github.com/Shiki0138/hotelbooking-sub004/internal/registry"
	"github.com/Shiki0138/hotelbooking-sub004/internal/storage"
)

const eventBufferSize = 1024

// AppContext aggregates every runtime dependency. Close releases them in
// reverse dependency order.
type AppContext struct {
	Config config.Config
	Log    zerolog.Logger

	RedisClient   *redis.Client
	MySQLHistory  *storage.MySQL
	HybridHistory *storage.Hybrid

	Store      notify.Store
	History    notify.History
	InboxStore inbox.Store

	Emitter    *notify.Emitter
	Adapters   *notify.AdapterRegistry
	Monitor    *health.Monitor
	Registry   *registry.Registry
	Limiter    *ratelimit.Limiter
	Dispatcher *dispatch.Dispatcher

	Queue        *queue.PriorityQueue
	Worker       *queue.Worker
	Mirror       *queue.NSQMirror
	TierConsumer *queue.NSQTierConsumer
}

// Start launches the background pieces: tier workers, health probes, and the
// event drain.
func (app *AppContext) Start() {
	go app.drainEvents()
	app.Worker.Start()
	if err := app.Monitor.Start(); err != nil {
		app.Log.Error().Err(err).Msg("health monitor failed to start, probes disabled")
	}
}

// drainEvents consumes the observability bus. Today the sink is the log;
// the bus exists so a metrics exporter can replace this loop.
func (app *AppContext) drainEvents() {
	for ev := range app.Emitter.Events() {
		app.Log.Debug().
			Str("event", string(ev.Type)).
			Str("request", ev.RequestID).
			Str("channel", string(ev.Channel)).
			Str("detail", ev.Detail).
			Msg("dispatch event")
	}
}

// Close stops accepting new work first, drains what is in flight, then
// releases external connections.
func (app *AppContext) Close() {
	if app.TierConsumer != nil {
		app.TierConsumer.Stop()
	}
	if app.Worker != nil {
		app.Worker.Stop()
	}
	if app.Monitor != nil {
		app.Monitor.Stop()
	}
	if app.Mirror != nil {
		app.Mirror.Close()
	}
	if app.Emitter != nil {
		app.Emitter.Close()
	}
	if app.HybridHistory != nil {
		app.HybridHistory.Close()
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Log.Error().Err(err).Msg("redis close error")
		}
	}
	if app.MySQLHistory != nil {
		if err := app.MySQLHistory.Close(); err != nil {
			app.Log.Error().Err(err).Msg("mysql close error")
		}
	}
	app.Log.Info().Msg("app context released")
}

//
// Initialization
//

// InitAppContext wires the full engine from configuration.
func InitAppContext(cfg config.Config, log zerolog.Logger) *AppContext {
	initializer := &applicationInitializer{cfg: cfg, log: log}
	return initializer.initialize()
}

type applicationInitializer struct {
	cfg config.Config
	log zerolog.Logger

	redisClient *redis.Client
}

func (init *applicationInitializer) initialize() *AppContext {
	init.connectRedis()

	store, history := init.createStores()
	mysqlHistory := init.createMySQLHistory()
	var hybridHistory *storage.Hybrid
	if mysqlHistory != nil {
		if init.redisClient != nil {
			hybridHistory = storage.NewHybrid(history, mysqlHistory, init.log)
			history = hybridHistory
		} else {
			history = mysqlHistory
		}
	}
	inboxStore := init.createInboxStore()

	emitter := notify.NewEmitter(eventBufferSize, init.log)
	adapters := init.createAdapters(inboxStore)
	timedAdvisor := init.createAdvisor()
	monitor := init.createMonitor(adapters, emitter, timedAdvisor)

	reg := registry.New(store, init.log)
	limiter := ratelimit.New(
		store,
		init.cfg.Limits.GlobalPerMinute,
		init.cfg.Limits.MaxPerDay,
		init.log,
	)

	coordinator := failover.NewCoordinator(adapters, monitor, reg, emitter, failover.Config{
		MaxRetries:        init.cfg.Retry.MaxRetries,
		RetryBackoff:      init.cfg.Retry.RetryBackoff.Std(),
		PerChannelTimeout: init.cfg.Retry.PerChannelTimeout.Std(),
	}, init.log)

	dispatcher := dispatch.NewDispatcher(reg, limiter, coordinator, emitter, init.log)
	dispatcher.SetScoreThresholds(init.cfg.PriorityThresholds)
	dispatcher.SetBatchPolicy(init.cfg.Batch.Concurrency, init.cfg.Batch.Size, init.cfg.Batch.Pause.Std())
	dispatcher.SetHistory(history)
	dispatcher.SetDedup(init.createDedupChecker(), init.cfg.DedupTTL.Std())
	if timedAdvisor != nil {
		dispatcher.SetAdvisor(timedAdvisor)
	}

	priorityQueue := queue.NewPriorityQueue(init.cfg.Queue.CapacityPerTier)
	worker := queue.NewWorker(priorityQueue, dispatcher, queue.WorkerConfig{
		DrainInterval: init.cfg.Queue.DrainInterval.Std(),
		BatchSize:     init.cfg.Queue.DrainBatch,
		Concurrency:   init.cfg.Queue.Workers,
	}, init.log)

	return &AppContext{
		Config:        init.cfg,
		Log:           init.log,
		RedisClient:   init.redisClient,
		MySQLHistory:  mysqlHistory,
		HybridHistory: hybridHistory,
		Store:         store,
		History:       history,
		InboxStore:    inboxStore,
		Emitter:       emitter,
		Adapters:      adapters,
		Monitor:       monitor,
		Registry:      reg,
		Limiter:       limiter,
		Dispatcher:    dispatcher,
		Queue:         priorityQueue,
		Worker:        worker,
		Mirror:        init.createMirror(),
	}
}

// connectRedis is optional: without an address the engine runs fully
// in-memory, which is the single-process development mode.
func (init *applicationInitializer) connectRedis() {
	if init.cfg.Redis.Addr == "" {
		init.log.Info().Msg("redis not configured, using in-memory stores")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     init.cfg.Redis.Addr,
		Password: init.cfg.Redis.Password,
		DB:       init.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		init.log.Fatal().Err(err).Str("addr", init.cfg.Redis.Addr).Msg("redis unreachable")
	}

	init.redisClient = client
	init.log.Info().Str("addr", init.cfg.Redis.Addr).Msg("redis connected")
}

func (init *applicationInitializer) createStores() (notify.Store, notify.History) {
	if init.redisClient != nil {
		redisStore := storage.NewRedis(init.redisClient, init.cfg.Namespace, init.cfg.MaxKeepRecords)
		return redisStore, redisStore
	}
	memory := storage.NewMemory()
	return memory, memory
}

func (init *applicationInitializer) createMySQLHistory() *storage.MySQL {
	if init.cfg.MySQL.DSN == "" {
		return nil
	}
	archive, err := storage.OpenMySQL(init.cfg.MySQL.DSN, init.cfg.MaxKeepRecords, init.log)
	if err != nil {
		init.log.Error().Err(err).Msg("mysql history unavailable, falling back")
		return nil
	}
	init.log.Info().Msg("mysql history archive connected")
	return archive
}

func (init *applicationInitializer) createInboxStore() inbox.Store {
	if init.redisClient != nil {
		return inbox.NewRedisStore(
			init.redisClient,
			init.cfg.Namespace,
			init.cfg.InboxMaxPerUser,
			init.cfg.InboxTTL.Std(),
		)
	}
	return inbox.NewMemoryStore(int(init.cfg.InboxMaxPerUser))
}

func (init *applicationInitializer) createDedupChecker() idempotency.Checker {
	if init.redisClient != nil {
		return idempotency.NewRedis(init.redisClient, init.cfg.Namespace)
	}
	return idempotency.NewMemory()
}

// createAdapters registers one adapter per channel. Vendors without
// credentials get loopback implementations so every channel stays exercisable
// in development.
func (init *applicationInitializer) createAdapters(inboxStore inbox.Store) *notify.AdapterRegistry {
	adapters := notify.NewAdapterRegistry()

	adapters.Register(pushchannel.NewAdapter(pushchannel.NewLoopback(), init.log))
	adapters.Register(sms.NewAdapter(init.createSMSRoutes(), sms.Config{
		DefaultCountryCode: init.cfg.SMS.DefaultCountryCode,
		GlobalPerMinute:    init.cfg.SMS.GlobalPerMinute,
		PerDestination:     init.cfg.SMS.PerDestination,
	}, init.log))
	adapters.Register(email.NewAdapter(init.createMailer(), init.log))
	adapters.Register(inapp.NewAdapter(inboxStore, init.log))

	return adapters
}

func (init *applicationInitializer) createSMSRoutes() []sms.ProviderRoute {
	routes := []sms.ProviderRoute{
		{Provider: sms.NewLoopbackProvider("standard")},
	}
	if len(init.cfg.SMS.PremiumCountries) > 0 {
		routes = append(routes, sms.ProviderRoute{
			Provider:     sms.NewLoopbackProvider("premium"),
			CountryCodes: init.cfg.SMS.PremiumCountries,
			Premium:      true,
		})
	}
	return routes
}

func (init *applicationInitializer) createMailer() email.Mailer {
	if init.cfg.Email.PostmarkServerToken == "" {
		init.log.Info().Msg("postmark not configured, using loopback mailer")
		return email.NewLoopbackMailer()
	}
	mailer, err := email.NewPostmarkMailer(
		init.cfg.Email.PostmarkServerToken,
		init.cfg.Email.PostmarkAccountToken,
		init.cfg.Email.From,
	)
	if err != nil {
		init.log.Error().Err(err).Msg("postmark init failed, using loopback mailer")
		return email.NewLoopbackMailer()
	}
	return mailer
}

func (init *applicationInitializer) createAdvisor() *advisor.Timed {
	if !init.cfg.Advisor.Enabled {
		return nil
	}
	static := advisor.NewStatic(init.cfg.PriorityThresholds)
	return advisor.NewTimed(static, init.cfg.Advisor.Timeout.Std(), init.log)
}

func (init *applicationInitializer) createMonitor(
	adapters *notify.AdapterRegistry,
	emitter *notify.Emitter,
	timedAdvisor *advisor.Timed,
) *health.Monitor {
	opts := []health.Option{
		health.WithThreshold(init.cfg.Breaker.FailureThreshold),
		health.WithCoolDown(init.cfg.Breaker.CoolDown.Std()),
		health.WithProbeSchedule(init.cfg.Breaker.ProbeSchedule),
	}
	if timedAdvisor != nil {
		opts = append(opts, health.WithAdvisorProbe(timedAdvisor.Probe))
	}
	return health.NewMonitor(adapters, emitter, init.log, opts...)
}

func (init *applicationInitializer) createMirror() *queue.NSQMirror {
	if init.cfg.NSQ.NsqdAddress == "" {
		return nil
	}
	prefix := init.cfg.NSQ.TopicPrefix
	if prefix == "" {
		prefix = init.cfg.Namespace
	}
	mirror, err := queue.NewNSQMirror(init.cfg.NSQ.NsqdAddress, prefix, init.log)
	if err != nil {
		init.log.Error().Err(err).Msg("nsq mirror unavailable")
		return nil
	}
	init.log.Info().Str("prefix", prefix).Msg("nsq tier mirror connected")
	return mirror
}
