package bootstrap

import (
	"context"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"limitbot/src/connectors"
	"limitbot/src/controller"
	"limitbot/src/database"
	"limitbot/src/executors"
	"limitbot/src/repository"
)

// App holds every long-lived component, built once per process.
type App struct {
	Log *logrus.Entry
	DB  *gorm.DB

	Orders     *repository.OrderRepository
	Exceptions *repository.ExceptionRepository
	Executions *repository.ExecutionLogRepository

	Controller *controller.OrderController
	Monitor    *executors.Monitor

	DexScreener *connectors.DexScreenerClient
	Stream      *connectors.PriceStream
	Solana      *connectors.SolanaRPCClient
	Wallet      string
}

// SetupLogger applies LOG_LEVEL and LOG_FORMAT to the standard logger.
func SetupLogger(config database.Config) {
	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(config.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() {
	_ = godotenv.Load()
}

// New opens the main database and wires the store, the price sources, the
// trade executor, the monitor and the order controller.
func New() (*App, error) {
	LoadEnv()
	SetupLogger(database.GetConfig())

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return nil, err
	}

	return Build(database.MainDB, connectors.GetConfig(), executors.GetConfig()), nil
}

// Build wires an App on an already open database.
func Build(db *gorm.DB, connCfg connectors.Config, execCfg executors.Config) *App {
	log := logrus.WithField("app", "limitbot")

	app := &App{
		Log:        log,
		DB:         db,
		Orders:     repository.NewOrderRepository(db),
		Exceptions: repository.NewExceptionRepository(db),
		Executions: repository.NewExecutionLogRepository(db),
		Wallet:     connCfg.WalletPublicKey,
	}

	native := connectors.NewNativePrice(connCfg, execCfg.NativePriceFallback)
	app.DexScreener = connectors.NewDexScreenerClient(connCfg.DexScreenerURL, connCfg.PriceTimeout, connCfg.HTTPRetryCount)
	jupiter := connectors.NewJupiterClient(connCfg.JupiterPriceURL, connCfg.PriceTimeout, connCfg.HTTPRetryCount)
	app.Solana = connectors.NewSolanaRPCClient(connCfg.RPCEndpoint, connCfg.PriceTimeout, connCfg.HTTPRetryCount)

	oracle := connectors.NewFallbackOracle(log.WithField("component", "FallbackOracle"))
	if connCfg.PriceStreamEnabled {
		app.Stream = connectors.NewPriceStream(connCfg.PumpPortalWSURL, native, connCfg.PriceStreamMaxAge)
		oracle.Add("pumpportal-stream", app.Stream)
	}
	oracle.Add("dexscreener", app.DexScreener).Add("jupiter", jupiter)

	trader := connectors.NewPumpPortalClientFromConfig(connCfg)
	if connCfg.PumpPortalAPIKey == "" {
		log.Warn("PUMPPORTAL_API_KEY is empty, triggered orders will fail")
	}

	app.Monitor = executors.NewMonitor(execCfg, app.Orders, oracle, trader, log.WithField("component", "Monitor")).
		WithNativePrice(native).
		WithExceptions(app.Exceptions).
		WithExecutions(app.Executions)

	app.Controller = controller.NewOrderController(app.Orders, log.WithField("component", "OrderController")).
		WithQuotes(app.DexScreener).
		WithBalances(app.Solana, app.Wallet).
		WithExceptions(app.Exceptions)

	return app
}

// RunStream keeps the price stream connected in the background until ctx is
// done. Nothing happens when the stream is disabled.
func (a *App) RunStream(ctx context.Context) {
	if a.Stream == nil {
		return
	}
	go a.Stream.Run(ctx)
}

// Close releases the database connection.
func (a *App) Close() {
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
