package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phillip/giftpots-go/config"
	"github.com/phillip/giftpots-go/contributions"
	"github.com/phillip/giftpots-go/gateway"
	"github.com/phillip/giftpots-go/store"
	"github.com/phillip/giftpots-go/utils"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "giftpots",
		Short:         "Wedding gift-pot contributions and payment reconciliation",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.SetupLogging()
	return cfg, nil
}

// openStore returns the configured backend and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using the in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	client, err := store.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("db", cfg.DBName).Info("connected to mongo")

	s := store.NewMongoStore(client, cfg.DBName, store.MongoOptions{
		Timeout:      cfg.StoreTimeout,
		Transactions: cfg.MongoTransactions,
	})
	closer := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("mongo disconnect")
		}
	}
	return s, closer, nil
}

func newService(cfg *config.Config, s store.Store) *contributions.Service {
	gw := gateway.NewRazorpay(gateway.RazorpayConfig{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		BaseURL:   cfg.RazorpayBaseURL,
		Timeout:   cfg.GatewayTimeout,
	})

	svc := contributions.NewService(store.NewRepo(s), gw, contributions.Options{
		KeyID:           cfg.RazorpayKeyID,
		KeySecret:       cfg.RazorpayKeySecret,
		WebhookSecret:   cfg.RazorpayWebhookSecret,
		AppURL:          cfg.AppURL,
		LinkDescription: "Wedding gift contribution",
	})
	if cfg.MailEnabled() {
		svc.WithNotifier(utils.NewMailer(cfg.ZeptoAPIURL, cfg.ZeptoAPIKey, cfg.EmailFrom, cfg.UPIName))
	}
	return svc
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create indexes and check the store is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			s, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := s.EnsureSchema(ctx); err != nil {
				return err
			}
			log.Info("schema is up to date")
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every paid contribution as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			s, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			w := os.Stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return newService(cfg, s).ExportPaidContributions(ctx, w)
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "-", "file to write, - for stdout")
	return cmd
}
