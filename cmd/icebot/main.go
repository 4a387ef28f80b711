// icebot - iceberg market maker for the SX.bet betting exchange.
//
// The engine holds a target position per market, keeps a small slice of it
// resting at a competitive maker price, and withdraws whenever the market's
// vig or the position's fill state makes resting unsafe.
//
// It runs as a message-driven child of the operator-facing process: control
// messages (start/stop/update/stopAll/forceRefreshAll) arrive as JSON lines
// on stdin, fill-status messages leave as JSON lines on stdout. All trading
// state is in-memory for the lifetime of the process.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/icebot/internal/config"
	"github.com/web3guy0/icebot/internal/exchange"
	"github.com/web3guy0/icebot/internal/feed"
	"github.com/web3guy0/icebot/internal/journal"
	"github.com/web3guy0/icebot/internal/maker"
	"github.com/web3guy0/icebot/internal/notify"
	"github.com/web3guy0/icebot/internal/signer"
)

const version = "1.2.0"

func main() {
	// Status messages own stdout; logs go to stderr.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("api", cfg.SXAPIURL).
		Bool("dry_run", cfg.DryRun).
		Msg("icebot starting...")

	sg, err := signer.New(cfg.PrivateKey, cfg.ChainID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize signer")
	}
	log.Info().Str("maker", sg.Maker().Hex()).Msg("Signer ready")

	jr, err := journal.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize journal")
	}

	client := exchange.NewClient(cfg.SXAPIURL, cfg.RequestTimeout, cfg.OrderRetryDelay)

	feedClient := feed.NewClient(cfg.SXWSURL)
	if err := feedClient.Connect(); err != nil {
		log.Warn().Err(err).Msg("Feed connection failed, relying on snapshots")
	}

	monitor := maker.NewMonitor(cfg, client, sg, feedClient, jr)
	feedClient.OnUpdate(monitor.PushFeedUpdate)

	// Optional Telegram mirror for completed positions.
	var notifier *notify.Notifier
	if cfg.TelegramToken != "" {
		notifier, err = notify.New(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram notifier unavailable")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Control messages from the parent process.
	go readControlMessages(monitor, cancel)

	// Status messages to the parent process.
	go writeStatusMessages(monitor, notifier)

	// Shutdown on signals: the monitor sweeps and cancels before exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	monitor.Run(ctx)

	feedClient.Close()
	log.Info().Msg("icebot stopped")
}

// readControlMessages decodes JSON control lines from stdin. EOF means the
// parent went away; treat it like a shutdown.
func readControlMessages(monitor *maker.Monitor, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg maker.ControlMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Warn().Err(err).Str("line", string(line)).Msg("malformed control message ignored")
			continue
		}
		monitor.Control(msg)
	}

	log.Info().Msg("control stream closed")
	cancel()
}

// writeStatusMessages emits status messages as JSON lines on stdout and
// mirrors completions to Telegram when configured.
func writeStatusMessages(monitor *maker.Monitor, notifier *notify.Notifier) {
	enc := json.NewEncoder(os.Stdout)
	for msg := range monitor.Status() {
		if err := enc.Encode(msg); err != nil {
			log.Warn().Err(err).Msg("status write failed")
		}
		if msg.Action == maker.StatusMarkFilled {
			notifier.MarkFilled(msg.MarketHash, msg.CurrentFill)
		}
	}
}
