package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"limitbot/cmd/bootstrap"
	"limitbot/src/auth"
	"limitbot/src/server"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New()
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer app.Close()

	app.RunStream(ctx)

	if err := app.Monitor.Start(ctx); err != nil {
		logger.WithError(err).Error("Monitor not started, API still available")
	}
	defer app.Monitor.Stop()

	router := server.NewRouter(server.Deps{
		Orders:    app.Controller,
		Search:    app.Orders,
		Monitor:   app.Monitor,
		TokenHash: auth.GetConfig().APITokenHash,

		AllowedOrigins: server.GetConfig().AllowedOrigins,
	})

	if err := server.StartServer(ctx, server.GetConfig().Port, router); err != nil {
		logger.WithError(err).Error("Server stopped with error")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
