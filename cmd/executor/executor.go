package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"limitbot/cmd/bootstrap"
	"limitbot/src/auth"
	"limitbot/src/server"
)

// Executor runs the order monitor until the process is interrupted.
type Executor struct {
	// ServeAPI also exposes the HTTP API on PORT.
	ServeAPI bool
}

func (t *Executor) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	app, err := bootstrap.New()
	if err != nil {
		logrus.WithError(err).Error("Failed to initialize")
		return err
	}
	defer app.Close()

	app.RunStream(ctx)

	if err := app.Monitor.Start(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start monitor")
		return err
	}
	defer app.Monitor.Stop()

	if t.ServeAPI || config.ServeAPI {
		router := server.NewRouter(server.Deps{
			Orders:    app.Controller,
			Search:    app.Orders,
			Monitor:   app.Monitor,
			TokenHash: auth.GetConfig().APITokenHash,

			AllowedOrigins: server.GetConfig().AllowedOrigins,
		})
		return server.StartServer(ctx, server.GetConfig().Port, router)
	}

	logrus.Info("Monitor running, press Ctrl+C to stop")
	<-ctx.Done()
	logrus.Info("Stopping monitor")

	return nil
}
