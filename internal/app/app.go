// README: Wiring: builds stores, gateway, reviewer, notifier and the dispatch service from config.
package app

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"plow/internal/ai"
	"plow/internal/config"
	"plow/internal/infra"
	"plow/internal/modules/dispatch"
	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/matching"
	"plow/internal/modules/notify"
	"plow/internal/modules/payment"
	"plow/internal/modules/pricing"
	"plow/internal/modules/profile"
	"plow/internal/types"
)

// App holds the wired service and everything that must be closed with it.
type App struct {
	Service  *dispatch.Service
	Profiles interface {
		profile.Provider
		profile.Writer
	}
	Verifier infra.TokenVerifier
	Reviewer ai.EvidenceReviewer
	Notifier *notify.Dispatcher

	db      *pgxpool.Pool
	rdb     *redis.Client
	closers []func()
}

// Build wires the application. Without a DSN it runs on memory stores, and
// without a Redis address profiles and the job board stay in memory.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	d := dispatch.Deps{Log: log}

	var feeSource pricing.Source
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
		if err != nil {
			return nil, err
		}
		a.db = pool
		a.closers = append(a.closers, pool.Close)
		d.Jobs = job.NewStore(pool)
		d.Ledger = ledger.NewStore(pool)
		d.UoW = dispatch.NewPostgresUoW(pool)
		feeSource = pricing.NewStore(pool)
	} else {
		log.Warn("PLOW_DB_DSN not set; jobs and ledger are kept in memory")
		jobs, led := job.NewMemStore(), ledger.NewMemStore()
		d.Jobs, d.Ledger, d.UoW = jobs, led, dispatch.NewMemoryUoW(jobs, led)
	}

	fees, err := pricing.NewService(feeSource, cfg.Payment.FeeBps)
	if err != nil {
		return nil, err
	}
	d.Fees = fees

	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.Profiles = profile.NewRedisStore(rdb)
		d.Board = matching.NewRedisBoard(rdb)
	} else {
		a.Profiles = profile.NewMemStore()
		d.Board = matching.NewMemBoard()
	}
	d.Profiles = a.Profiles

	if cfg.Maps.APIKey != "" {
		geo, err := profile.NewGoogleGeocoder(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			return nil, err
		}
		d.Geocoder = geo
	}

	d.Gateway, err = newGateway(cfg.Payment, log)
	if err != nil {
		return nil, err
	}

	switch cfg.Review.Mode {
	case "gemini":
		var objects ai.ObjectReader
		if len(cfg.Review.Buckets) > 0 {
			gcs, err := ai.NewGCSReader(ctx, cfg.Firebase.CredentialsFile)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, gcs.Close)
			objects = gcs
		}
		source := ai.NewEvidenceSource(cfg.Review.Buckets, cfg.Review.Hosts, objects)
		r, err := ai.NewGeminiReviewer(ctx, cfg.Review.GeminiKey, cfg.Review.MinScore, source)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		d.Reviewer = r
	default:
		d.Reviewer = ai.AutoApprove{}
	}
	a.Reviewer = d.Reviewer

	var fbApp *firebase.App
	if cfg.Firebase.ProjectID != "" {
		fbApp, err = infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		a.Verifier, err = infra.NewFirebaseVerifier(ctx, fbApp, cfg.Firebase.CheckRevoked)
		if err != nil {
			return nil, err
		}
	}

	sinks := []notify.Sink{notify.NewLogSink(log)}
	if a.rdb != nil {
		sinks = append(sinks, notify.NewPubSubSink(a.rdb, cfg.Notify.Channel))
	}
	if fbApp != nil {
		fcm, err := infra.NewMessagingClient(ctx, fbApp)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notify.NewPushSink(fcm, a.Profiles))
	}
	a.Notifier = notify.NewDispatcher(log, cfg.Notify.Buffer, cfg.Notify.Timeout, sinks...)
	a.closers = append(a.closers, a.Notifier.Close)
	d.Notifier = a.Notifier

	admins := make([]types.ID, 0)
	for _, id := range cfg.AdminIDs() {
		admins = append(admins, types.ID(id))
	}
	a.Service = dispatch.NewService(d, dispatch.Config{
		ConflictRetries: cfg.Dispatch.ConflictRetries,
		ConflictBackoff: cfg.Dispatch.ConflictBackoff,
		Admins:          admins,
	})
	ok = true
	return a, nil
}

func newGateway(cfg config.PaymentConfig, log logrus.FieldLogger) (payment.Gateway, error) {
	var gw payment.Gateway
	switch cfg.Provider {
	case "stripe":
		gw = payment.NewStripeGateway(cfg.StripeKey)
	case "sandbox":
		log.Warn("using the sandbox payment gateway; no real money moves")
		gw = payment.NewSandbox()
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
	return payment.NewAdapter(gw, payment.AdapterConfig{
		Timeout:         cfg.Timeout,
		MaxAttempts:     cfg.MaxAttempts,
		InitialBackoff:  payment.DefaultAdapterConfig().InitialBackoff,
		MaxBackoff:      payment.DefaultAdapterConfig().MaxBackoff,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, log), nil
}

// Migrate applies the schema when running on Postgres.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	dir, err := infra.MigrationsDir()
	if err != nil {
		return fmt.Errorf("locate migrations: %w", err)
	}
	return infra.Migrate(ctx, a.db, dir)
}

// Ready pings the backing stores.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Ping(ctx))
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Ping(ctx).Err())
	}
	return errors.Join(errs...)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
