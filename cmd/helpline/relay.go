package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haimi-h/shopify-clone-sub000/internal/db"
	"github.com/haimi-h/shopify-clone-sub000/internal/messaging"
	"github.com/haimi-h/shopify-clone-sub000/internal/relay"
)

func newRelayCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the support chat relay",
		Long: `Runs the realtime relay that customer chats connect to.

Messages are stored in the configured database. Agents read history and reply
through /api/conversations/:userId/messages. When relay.retention.cron is set,
old history is purged on that schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to helpline config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides relay.port)")
	return cmd
}

func runRelay(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Relay.Port = port
	}
	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer log.Sync()

	gormDB, err := db.Open(cfg.Relay.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	srv, err := relay.NewServer(relay.ServerOpts{
		DB:          gormDB,
		Port:        cfg.Relay.Port,
		WelcomeText: cfg.Relay.WelcomeText,
		RatePerSec:  cfg.Relay.RateLimit.PerSec,
		Burst:       cfg.Relay.RateLimit.Burst,
		AgentToken:  cfg.Relay.AgentToken,
		Notify:      messaging.NotifyConfig{Command: cfg.Relay.NotifyCommand},
		Logger:      log,
		Out:         out,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Relay.Retention.Cron != "" {
		ret, err := relay.NewRetention(relay.RetentionOpts{
			DB:       gormDB,
			Schedule: cfg.Relay.Retention.Cron,
			MaxAge:   cfg.Relay.Retention.MaxAge(),
			Logger:   log,
			OnRun:    srv.RecordPurge,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Retention: purging messages older than %s on %q\n",
			cfg.Relay.Retention.MaxAge(), cfg.Relay.Retention.Cron)
		go ret.Run(ctx)
	}

	return srv.Start(ctx)
}
