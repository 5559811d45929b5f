package main

import (
	"fleetrent/internal/bookings/handler"
	"fleetrent/internal/bookings/reconciler"
	"fleetrent/internal/bookings/repository"
	"fleetrent/internal/bookings/service"
	"fleetrent/internal/bookings/validator"
	userhandler "fleetrent/internal/users/handler"
	userservice "fleetrent/internal/users/service"
	vehiclehandler "fleetrent/internal/vehicles/handler"
	vehicleservice "fleetrent/internal/vehicles/service"
	"fleetrent/pkg/app"
	"fleetrent/pkg/clock"
	"fleetrent/pkg/config"
	"fleetrent/pkg/events"
	"fleetrent/pkg/kafka"
	kafka_config "fleetrent/pkg/kafka/config"
	kafka_middleware "fleetrent/pkg/kafka/middleware"
	"fleetrent/pkg/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	if cfg.JWTSecret == "" {
		cfg.Log.Fatal("JWT_SECRET must be set for the bookings service")
	}
	cfg.SetMongo()
	if cfg.LockBackend == config.LockBackendRedis {
		cfg.SetRedis()
	}

	cfg.Log.Info("Starting Bookings service")
	serverApp := app.NewApplication()

	publisher, closePublisher := initPublisher(cfg)
	ledger := repository.NewMongoLedger(cfg)
	clk := clock.New(cfg.Location())

	rec := reconciler.New(ledger, clk, publisher, cfg.Log)
	scheduler, err := reconciler.NewScheduler(rec, cfg.ReconcileSchedule, cfg.Location(), cfg.RequestTimeout, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create reconciliation scheduler", "error", err)
	}
	scheduler.Start()
	serverApp.OnShutdown(scheduler.Stop)
	serverApp.OnShutdown(closePublisher)

	v := validator.New(cfg.Log)
	bookingService := service.NewBookingService(ledger, initLocks(cfg), rec, v, clk, publisher, cfg)
	vehicleService := vehicleservice.NewVehicleService(ledger, v, cfg)
	userService := userservice.NewUserService(ledger, v, cfg)
	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.Log)

	serverApp.SetApp(cfg,
		handler.NewBookingHandler(bookingService, auth, cfg.Log),
		vehiclehandler.NewVehicleHandler(vehicleService, auth, cfg.Log),
		userhandler.NewUserHandler(userService, auth, cfg.Log),
	)
	serverApp.OnShutdown(cfg.GracefulShutdown)
	serverApp.Run()
}

func initLocks(cfg *config.Config) repository.VehicleLockRepository {
	if cfg.LockBackend == config.LockBackendRedis {
		cfg.Log.Info("Using Redis vehicle locks", "addr", cfg.RedisAddr)
		return repository.NewRedisVehicleLockRepository(cfg.Client.Redis)
	}
	cfg.Log.Info("Using Mongo vehicle locks", "database", cfg.MongoDatabaseName)
	return repository.NewMongoVehicleLockRepository(cfg)
}

// initPublisher falls back to a no-op publisher when no brokers are configured.
func initPublisher(cfg *config.Config) (events.Publisher, func()) {
	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	if !kafkaCfg.Enabled() {
		cfg.Log.Info("Kafka brokers not configured, booking events disabled")
		return events.Noop{}, func() {}
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log.Component("kafka")))
	producer.Use(kafka_middleware.MetricsProducerMiddleware())

	closeProducer := func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	}
	return events.NewKafkaPublisher(producer, kafkaCfg.PublishTimeout, cfg.Log), closeProducer
}
