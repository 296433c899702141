package command

import (
	"context"
	"fmt"

	"github.com/pixil98/go-arena/internal/driver"
	"github.com/pixil98/go-arena/internal/listener"
	"github.com/pixil98/go-arena/internal/logging"
	"github.com/pixil98/go-arena/internal/messaging"
	"github.com/pixil98/go-arena/internal/network"
	"github.com/pixil98/go-service"
	"go.uber.org/zap"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	logger, err := cfg.Logging.buildLogger()
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	routerCfg, err := cfg.Sessions.routerConfig()
	if err != nil {
		return nil, fmt.Errorf("configuring sessions: %w", err)
	}

	// A scene that fails to build aborts startup.
	sc, err := cfg.Scene.loadScene(&cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("loading scene: %w", err)
	}

	workers := service.WorkerList{}
	var routerOpts []network.RouterOpt

	var natsServer *messaging.NatsServer
	if cfg.Nats.Enabled {
		natsServer, err = cfg.Nats.buildNatsServer()
		if err != nil {
			return nil, fmt.Errorf("creating nats server: %w", err)
		}
		routerOpts = append(routerOpts, network.WithPublisher(messaging.NewEventPublisher(natsServer)))
		workers["nats"] = withLogger(natsServer, logger, "nats")
	}

	router := network.NewRouter(sc, routerCfg, routerOpts...)
	workers["router"] = withLogger(router, logger, "router")

	if natsServer != nil {
		workers["admin"] = withLogger(messaging.NewAdminSubscriber(natsServer, router), logger, "admin")
	}

	// Create Listeners
	cm := listener.NewConnectionManager(router)
	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		name := fmt.Sprintf("listener-%d", i)
		w, err := l.BuildListener(cm, router)
		if err != nil {
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[name] = withLogger(w, logger, name)
	}
	workers["listeners"] = &listeners

	// The driver only reports; sessions tick on their own.
	d := driver.NewDriver([]driver.Ticker{router}, driver.WithTickLength(cfg.reportInterval()))
	workers["driver"] = withLogger(d, logger, "driver")

	return workers, nil
}

// loggedWorker starts its worker with a named logger in the context.
type loggedWorker struct {
	service.Worker
	log *zap.SugaredLogger
}

func withLogger(w service.Worker, l *zap.SugaredLogger, name string) service.Worker {
	return loggedWorker{Worker: w, log: l.With("worker", name)}
}

func (w loggedWorker) Start(ctx context.Context) error {
	return w.Worker.Start(logging.WithLogger(ctx, w.log))
}
