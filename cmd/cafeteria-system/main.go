package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cafeteria-system/internal/common/httpx"
	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/config"
	"cafeteria-system/internal/connections/database"
	"cafeteria-system/internal/connections/rabbitmq"
	"cafeteria-system/internal/docstore"
	"cafeteria-system/internal/docstore/memory"
	"cafeteria-system/internal/docstore/postgres"
	"cafeteria-system/internal/domain"
	"cafeteria-system/internal/events"
	orderhandlers "cafeteria-system/internal/orders/handlers"
	"cafeteria-system/internal/orders/repository"
	orderservice "cafeteria-system/internal/orders/service"
	"cafeteria-system/internal/sequence"
	"cafeteria-system/internal/staffview"
	staffhandlers "cafeteria-system/internal/staffview/handlers"
)

func main() {
	mode := flag.String("mode", "", "api-service | notification-subscriber")
	port := flag.Int("port", 3000, "api-service: http port")
	cfgPath := flag.String("config", "config.yml", "path to YAML config")
	dev := flag.Bool("dev", false, "api-service: in-memory store, no broker")
	flag.Parse()

	lg := logger.New("bootstrap")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(*cfgPath, *dev)
	if err != nil {
		lg.Error("config_load_failed", err, nil)
		os.Exit(1)
	}

	switch *mode {
	case "api-service":
		lg.Info("service_started", map[string]any{"service": "api-service", "port": *port, "dev": *dev})
		if err := runAPI(ctx, cfg, *port, *dev, lg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		lg.Info("service_started", map[string]any{"service": "notification-subscriber"})
		if err := runSubscriber(ctx, cfg, lg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: api-service | notification-subscriber")
		os.Exit(2)
	}
}

// loadConfig tolerates a missing config file in dev mode and seeds a
// couple of outlets so the API is usable out of the box.
func loadConfig(path string, dev bool) (*config.Config, error) {
	if dev {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dev && len(cfg.Outlets) == 0 {
		cfg.Outlets = []domain.Outlet{
			{ID: "bites", Name: "Campus Bites", Active: true},
			{ID: "juice-bar", Name: "Juice Bar", Active: true},
		}
	}
	return cfg, nil
}

func runAPI(ctx context.Context, cfg *config.Config, port int, dev bool, lg *logger.Logger) error {
	var (
		store     docstore.Store
		publisher orderservice.EventPublisher
	)
	if dev {
		store = memory.New()
		publisher = nopPublisher{}
	} else {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		pg := postgres.New(pool)
		if err := pg.Bootstrap(ctx); err != nil {
			return err
		}
		store = pg

		rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer rmq.Close()
		if err := events.DeclareTopology(rmq.Channel()); err != nil {
			return err
		}
		publisher = events.NewPublisher(rmq)
	}

	allocator := sequence.New(store,
		sequence.WithMaxAttempts(cfg.Orders.AllocAttempts),
		sequence.WithBackoffBase(cfg.Orders.AllocBackoff()))
	repo := repository.New(store, lg.With("order-store"),
		repository.WithScatterConcurrency(cfg.Staff.ScatterConcurrency),
		repository.WithPartitionTimeout(cfg.Staff.PartitionTimeout()))
	svc := orderservice.New(allocator, repo, publisher, cfg, cfg.Orders, lg.With("order-service"))

	policy, err := staffview.ParsePolicy(cfg.Staff.StalePolicy)
	if err != nil {
		return err
	}
	manager := staffview.NewManager(repo, lg.With("staff-view"), staffview.Config{
		RefreshInterval: cfg.Staff.RefreshInterval(),
		StalePolicy:     policy,
	})
	defer manager.CloseAll()

	mux := http.NewServeMux()
	orderhandlers.Register(mux, orderhandlers.New(svc, lg.With("order-api")))
	staffhandlers.Register(mux, staffhandlers.New(manager, lg.With("staff-api")))

	return httpx.New(fmt.Sprintf(":%d", port), mux).Run(ctx)
}

func runSubscriber(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer rmq.Close()
	if err := events.DeclareTopology(rmq.Channel()); err != nil {
		return err
	}
	return events.NewSubscriber(rmq, lg.With("notifications")).Run(ctx)
}

// nopPublisher keeps dev mode broker-free.
type nopPublisher struct{}

func (nopPublisher) OrderCreated(context.Context, domain.Order) error { return nil }
func (nopPublisher) StatusChanged(context.Context, domain.Order, domain.Status) error {
	return nil
}
