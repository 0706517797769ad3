// Copyright 2026 The Gozo Authors.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/timeutil"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/gozoproject/gozo/config"
	"github.com/gozoproject/gozo/gateway"
	"github.com/gozoproject/gozo/scheduler"
	"github.com/gozoproject/gozo/store"
	"github.com/gozoproject/gozo/supervisor"
)

var fConfigFile = flag.String("config", "", "Path to a YAML config file. If unset, configuration is read from the environment.")

func main() {
	flag.Parse()

	log := newLogger()

	cfg, err := config.Load(*fConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(parseLevel(cfg.LogLevel))

	nc, err := dial(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	st, err := store.Open(nc, cfg.KVBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open durable store")
	}

	clock := timeutil.RealClock()
	gw := gateway.New(nc, cfg.Subject, clock, log)
	sv := supervisor.New(cfg, gw, st, clock, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sv.Serve(ctx); err != nil {
		if errors.Is(err, scheduler.ErrFatal) {
			log.Fatal().Err(err).Msg("unrecoverable failure")
		}
		log.Error().Err(err).Msg("serve returned an error")
		os.Exit(1)
	}
}

// dial opens the single NATS connection Gozo uses for both subscribing and
// publishing, with auth material assembled from cfg. A disconnect after a
// successful dial is treated as fatal: Gozo does not attempt in-process
// reconnection, relying on an external supervisor to restart the process, so
// the disconnect and closed handlers both log and exit non-zero rather than
// leave the process running against a dead connection.
func dial(cfg config.Config, log zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("gozo"),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Fatal().Err(fmt.Errorf("%w: nats disconnected: %v", scheduler.ErrFatal, err)).Msg("lost nats connection")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Fatal().Err(scheduler.ErrFatal).Msg("nats connection closed")
		}),
	}

	switch {
	case cfg.CredsFile != "":
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	case cfg.NKeyFile != "":
		nkeyOpt, err := nats.NkeyOptionFromSeed(cfg.NKeyFile)
		if err != nil {
			return nil, fmt.Errorf("nkey option: %w", err)
		}
		opts = append(opts, nkeyOpt)
	case cfg.Token != "":
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.User != "":
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	if cfg.EnableTLS {
		opts = append(opts, nats.ClientCert(cfg.CertFile, cfg.KeyFile))
	}

	nc, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", cfg.NatsURL, err)
	}

	return nc, nil
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
