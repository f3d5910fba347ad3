package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/msgproxy/vchannel/internal/admission"
	appstate "github.com/msgproxy/vchannel/internal/app"
	"github.com/msgproxy/vchannel/internal/config"
	"github.com/msgproxy/vchannel/internal/logging"
	"github.com/msgproxy/vchannel/internal/queue"
	"github.com/msgproxy/vchannel/internal/vchannel"
	"github.com/msgproxy/vchannel/internal/watchdog"
	"github.com/msgproxy/vchannel/internal/worker"
)

// shutdownTimeout bounds how long serve waits for in-flight HTTP requests
// to finish on interrupt, mirroring the teacher broker's bounded Stop().
// Delivery loops are cancelled afterwards by application.Shutdown, which
// this timeout does not cover.
const shutdownTimeout = 5 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the message proxy server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Aliases: []string{"H"}, Value: "localhost"},
			&cli.IntFlag{Name: "port", Aliases: []string{"P"}, Value: 8080},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.example.yaml"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
			&cli.StringFlag{Name: "log-file"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	log := logging.New(logging.Options{
		Debug:   cmd.Bool("debug"),
		LogFile: cmd.String("log-file"),
	})

	rawConfig, err := config.Load(cmd.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	channels, err := vchannel.BuildFromConfig(rawConfig, worker.NewRegistry(), queue.NewRegistry(), log)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	application := appstate.New(channels, 120, log)
	if err := application.Start(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	fiberApp := admission.NewServer(application, log)

	addr := net.JoinHostPort(cmd.String("host"), fmt.Sprintf("%d", cmd.Int("port")))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := watchdog.New()
	defer notifier.Close()
	stopPinger := notifier.StartPinger(ctx)
	defer stopPinger()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		serveErr <- fiberApp.Listen(addr)
	}()

	if err := notifier.Ready(); err != nil {
		log.Warn("systemd notify failed", "err", err)
	}

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return cli.Exit(err.Error(), 2)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	_ = notifier.Stopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("server shutdown did not complete cleanly", "err", err)
	}

	application.Shutdown()

	return nil
}
