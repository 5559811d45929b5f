package main

import (
	"context"
	"flag"
	"fleetrent/internal/bookings/reconciler"
	"fleetrent/internal/bookings/repository"
	"fleetrent/pkg/clock"
	"fleetrent/pkg/config"
	"fleetrent/pkg/events"
	"os"
	"os/signal"
	"syscall"
)

const JobName = "booking-reconciler"

func main() {
	runOnce := flag.Bool("run-once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	rec := reconciler.New(repository.NewMongoLedger(cfg), clock.New(cfg.Location()), events.Noop{}, cfg.Log)

	if *runOnce {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		returned := rec.Reconcile(ctx, reconciler.AllVehicles)
		cfg.Log.Info("Reconciliation pass finished", "returned", returned)
		return
	}

	scheduler, err := reconciler.NewScheduler(rec, cfg.ReconcileSchedule, cfg.Location(), cfg.RequestTimeout, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create reconciliation scheduler", "error", err)
	}
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	cfg.Log.Info("Shutdown signal received", "signal", sig.String())
	scheduler.Stop()
}
