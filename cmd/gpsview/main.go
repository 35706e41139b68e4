package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"nuha.dev/gpsview/internal/client"
	"nuha.dev/gpsview/internal/relay"
)

func main() {
	debug := flag.Bool("debug", false, "sets log level to debug")
	device := flag.String("device", "", "device id to fetch history for")
	start := flag.String("start", "", "history range start (ISO-8601)")
	end := flag.String("end", "", "history range end (ISO-8601)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	viper.SetEnvPrefix("gpsview")
	viper.AutomaticEnv()
	config := client.ConfigFromViper()

	c := client.New(config)
	c.Run()
	defer c.Close()

	if config.NatsURL != "" {
		rl, err := relay.New(config.NatsURL, config.NatsSubject, c.Buffer())
		if err != nil {
			log.Error().Err(err).Msg("relay disabled, nats connect failed")
		} else {
			defer rl.Close()
		}
	}

	if *start != "" && *end != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := c.WaitReady(ctx); err != nil {
			log.Error().Err(err).Msg("history sync failed, channels not ready")
		} else if n, err := c.SyncHistory(ctx, *device, *start, *end); err != nil {
			log.Error().Err(err).Msg("history sync failed")
		} else {
			log.Info().Int("points", n).Msg("history synced")
		}
		cancel()
	}

	updates := c.Buffer().Updates().SubscribeReplay(16)
	go func() {
		for pts := range updates.C() {
			log.Info().Int("merged", len(pts)).Msg("view updated")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
}
