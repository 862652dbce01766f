// README: Entry point; loads config, wires services, starts the HTTP server and the notification worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"plow/internal/app"
	"plow/internal/config"
	httptransport "plow/internal/http"
	"plow/internal/infra"
	"plow/internal/modules/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		infra.NewLogger("info", "text").Fatal(err)
	}
	log := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := infra.SetupTelemetry(ctx, "plow-api", cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure, log)
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.WithError(err).Warn("telemetry shutdown")
		}
	}()

	policy, err := queue.ParsePolicy(cfg.Dispatch.QueuePolicy)
	if err != nil {
		log.Fatal(err)
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("wiring failed")
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	if a.Verifier == nil {
		log.Warn("PLOW_FIREBASE_PROJECT_ID not set; trusting X-Plow-User headers")
	}

	go a.Notifier.Run(ctx)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Jobs:        a.Service,
		Profiles:    a.Profiles,
		Verifier:    a.Verifier,
		Log:         log,
		Currency:    cfg.Payment.Currency,
		QueuePolicy: policy,
		Ready:       a.Ready,
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, router, log)
	if err := server.Run(ctx, cfg.HTTP.ShutdownTimeout); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
