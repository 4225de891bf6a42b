package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/vitaminmoo/blebench/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c cli.CLI
	kctx := kong.Parse(&c,
		kong.Name("blebench"),
		kong.Description("Send messages to and measure throughput of a BLE GATT peripheral."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kctx.Run(&c)
	_ = zap.L().Sync()
	kctx.FatalIfErrorf(err)
}
