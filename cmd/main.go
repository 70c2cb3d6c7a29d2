package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"limitbot/cmd/bootstrap"
	"limitbot/cmd/executor"
	"limitbot/src/auth"
	"limitbot/src/controller"
	"limitbot/src/model"
	"limitbot/src/repository"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "limitbot"
	app.Usage = "Price-triggered limit orders for Solana tokens"
	app.Version = Version

	app.Commands = []cli.Command{
		buyCMD,
		sellCMD,
		ordersCMD,
		cancelCMD,
		statusCMD,
		balanceCMD,
		quoteCMD,
		monitorCMD,
		serveCMD,
		hashTokenCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	targetFlags = []cli.Flag{
		cli.StringFlag{Name: "token, t", Usage: "token mint address"},
		cli.StringFlag{Name: "price, p", Usage: "target price in USD"},
		cli.StringFlag{Name: "market-cap, m", Usage: "target market cap in USD, instead of --price"},
		cli.StringFlag{Name: "slippage, s", Usage: "slippage tolerance in percent (1-50)"},
	}

	buyCMD = cli.Command{
		Name:        "buy",
		Usage:       "place a buy order",
		Action:      buyAction,
		ArgsUsage:   "",
		Flags:       append([]cli.Flag{cli.StringFlag{Name: "sol", Usage: "SOL amount to spend"}}, targetFlags...),
		Description: `Buy when the price drops to or below the target`,
	}
	sellCMD = cli.Command{
		Name:        "sell",
		Usage:       "place a sell order",
		Action:      sellAction,
		ArgsUsage:   "",
		Flags:       append([]cli.Flag{cli.StringFlag{Name: "amount, a", Usage: "token quantity to sell"}}, targetFlags...),
		Description: `Sell when the price rises to or above the target`,
	}
	ordersCMD = cli.Command{
		Name:   "orders",
		Usage:  "list orders",
		Action: ordersAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "token, t", Usage: "only orders of this token"},
			cli.StringFlag{Name: "status", Usage: "pending|executing|executed|cancelled|failed (default pending)"},
			cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum rows"},
		},
	}
	cancelCMD = cli.Command{
		Name:      "cancel",
		Usage:     "cancel a pending order",
		Action:    cancelAction,
		ArgsUsage: "<order id>",
	}
	statusCMD = cli.Command{
		Name:   "status",
		Usage:  "order counts and recent errors",
		Action: statusAction,
	}
	balanceCMD = cli.Command{
		Name:   "balance",
		Usage:  "wallet SOL and token balances",
		Action: balanceAction,
	}
	quoteCMD = cli.Command{
		Name:      "quote",
		Usage:     "current price and market cap of a token",
		Action:    quoteAction,
		ArgsUsage: "<token mint address>",
	}
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "run the order monitor",
		Action:      monitorAction,
		Description: `Run the monitor loop until interrupted`,
	}
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the order monitor and the HTTP API",
		Action:      serveAction,
		Description: `Run the monitor loop and serve the HTTP API on PORT`,
	}
	hashTokenCMD = cli.Command{
		Name:      "hash-token",
		Usage:     "print the API_TOKEN_HASH value for a bearer token",
		Action:    hashTokenAction,
		ArgsUsage: "<token>",
	}
)

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func optionalDecimal(c *cli.Context, name string) (*decimal.Decimal, error) {
	v := c.String(name)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, &model.ValidationError{Field: name, Reason: "is not a number"}
	}
	return &d, nil
}

func placeRequest(c *cli.Context, side model.OrderSide) (controller.PlaceOrderRequest, error) {
	req := controller.PlaceOrderRequest{TokenAddress: c.String("token"), Side: side}

	var err error
	if req.TargetPrice, err = optionalDecimal(c, "price"); err != nil {
		return req, err
	}
	if req.TargetMarketCap, err = optionalDecimal(c, "market-cap"); err != nil {
		return req, err
	}
	if req.Slippage, err = optionalDecimal(c, "slippage"); err != nil {
		return req, err
	}

	switch side {
	case model.OrderSideBuy:
		if req.NativeAmount, err = optionalDecimal(c, "sol"); err != nil {
			return req, err
		}
	case model.OrderSideSell:
		amount, err := optionalDecimal(c, "amount")
		if err != nil {
			return req, err
		}
		if amount != nil {
			req.Amount = *amount
		}
	}
	return req, nil
}

func placeAction(c *cli.Context, side model.OrderSide) error {
	req, err := placeRequest(c, side)
	if err != nil {
		return err
	}

	app, err := bootstrap.New()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	order, err := app.Controller.PlaceOrder(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Order %s placed: %s %s at %s\n", order.ID, order.Side, order.Token, controller.FormatPrice(order.TargetPrice))
	return nil
}

func buyAction(c *cli.Context) error {
	return placeAction(c, model.OrderSideBuy)
}

func sellAction(c *cli.Context) error {
	return placeAction(c, model.OrderSideSell)
}

func ordersAction(c *cli.Context) error {
	app, err := bootstrap.New()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	status := model.OrderStatus(c.String("status"))
	if status == "" {
		status = model.OrderStatusPending
	}
	if !status.Valid() {
		return &model.ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}

	opts := repository.OrderSearchOptions{Status: &status, Limit: c.Int("limit")}
	if token := c.String("token"); token != "" {
		opts.TokenAddress = &token
	}

	orders, err := app.Orders.Search(ctx, opts)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println("No orders")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSIDE\tTOKEN\tAMOUNT\tTARGET\tSTATUS\tCREATED")
	for _, o := range orders {
		amount := o.Amount.String()
		if resolved, err := o.ResolveAmount(decimal.Zero); err == nil && resolved.Denomination == model.DenominationNative {
			amount = resolved.Value.String() + " SOL"
		} else if o.FiatAmount != nil && o.Side == model.OrderSideBuy {
			amount = "$" + o.FiatAmount.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Side, o.Token, amount, controller.FormatPrice(o.TargetPrice), o.Status,
			o.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func cancelAction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return &model.ValidationError{Field: "id", Reason: "is required"}
	}

	app, err := bootstrap.New()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if _, err := app.Controller.CancelOrder(ctx, id); err != nil {
		var stateErr *model.InvalidStateError
		if errors.As(err, &stateErr) {
			return fmt.Errorf("order %s is %s and can no longer be cancelled", id, stateErr.Current)
		}
		return err
	}

	fmt.Printf("Order %s cancelled\n", id)
	return nil
}

func statusAction(_ *cli.Context) error {
	app, err := bootstrap.New()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	stats, err := app.Controller.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Active:    %d\n", stats.Active)
	fmt.Printf("Executing: %d\n", stats.Executing)
	fmt.Printf("Executed:  %d\n", stats.Executed)
	fmt.Printf("Cancelled: %d\n", stats.Cancelled)
	fmt.Printf("Failed:    %d\n", stats.Failed)
	fmt.Printf("Total:     %d\n", stats.Total)

	recent, err := app.Exceptions.Recent(ctx, 5)
	if err != nil {
		return err
	}
	if len(recent) > 0 {
		fmt.Println("\nRecent errors:")
		for _, e := range recent {
			fmt.Printf("  %s  %s.%s  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Module, e.Method, e.Message)
		}
	}
	return nil
}

func balanceAction(_ *cli.Context) error {
	app, err := bootstrap.New()
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Wallet == "" {
		return &model.ValidationError{Field: "WALLET_PUBLIC_KEY", Reason: "is not configured"}
	}

	ctx, cancel := commandContext()
	defer cancel()

	pending, err := app.Orders.ListActive(ctx)
	if err != nil {
		return err
	}
	var mints []string
	seen := map[string]bool{}
	for _, o := range pending {
		if o.Side == model.OrderSideSell && !seen[o.TokenAddress] {
			seen[o.TokenAddress] = true
			mints = append(mints, o.TokenAddress)
		}
	}

	balance, err := app.Solana.WalletBalance(ctx, app.Wallet, mints...)
	if err != nil {
		return err
	}

	fmt.Printf("Wallet %s\n", balance.Owner)
	fmt.Printf("SOL: %s\n", balance.Native.String())
	for _, mint := range mints {
		committed, err := app.Orders.CommittedSellAmount(ctx, mint)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s committed in pending sells)\n", mint, balance.Tokens[mint].String(), committed.String())
	}
	return nil
}

func quoteAction(c *cli.Context) error {
	addr := c.Args().First()
	if addr == "" {
		return &model.ValidationError{Field: "token", Reason: "is required"}
	}

	app, err := bootstrap.New()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	q, err := app.Controller.Quote(ctx, addr)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", q.Symbol, q.Name)
	fmt.Printf("Price:      $%s\n", controller.FormatPrice(q.PriceUSD))
	fmt.Printf("Market cap: $%s\n", q.MarketCap.StringFixed(0))
	return nil
}

func monitorAction(_ *cli.Context) error {

	logrus.Info("Starting monitor CMD")

	executorStrategy := &executor.Executor{}
	err := executorStrategy.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func serveAction(_ *cli.Context) error {

	logrus.Info("Starting serve CMD")

	executorStrategy := &executor.Executor{ServeAPI: true}
	if err := executorStrategy.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func hashTokenAction(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return &model.ValidationError{Field: "token", Reason: "is required"}
	}
	hashed, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Println(hashed)
	return nil
}
