package main

import (
	"context"

	"github.com/pixil98/go-arena/cmd/arena/command"
	"github.com/pixil98/go-service"
	"go.uber.org/zap"
)

func main() {
	logger := zap.Must(zap.NewProduction()).Sugar()
	defer func() { _ = logger.Sync() }()

	app, err := service.NewApp(&command.Config{}, command.BuildWorkers)
	if err != nil {
		logger.Fatalw("creating application", "error", err)
	}

	err = app.Run(context.Background())
	if err != nil {
		logger.Fatalw("running application", "error", err)
	}

	logger.Info("exiting")
}
