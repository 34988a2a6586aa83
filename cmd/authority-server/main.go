// Command authority-server runs the RFID supply-chain authority: it serves
// distributor public keys, accepts mirrored hand-off updates, and can also
// run as a one-shot key importer that seeds the store and exits without
// serving.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/icprovenance/rfidchain/config"
	"github.com/icprovenance/rfidchain/rsasig"
	"github.com/icprovenance/rfidchain/store"
	"github.com/icprovenance/rfidchain/transport"
)

func main() {
	var (
		address     string
		port        int
		databaseDir string
		privateKey  string
		importPath  string
		verbose     bool
	)

	root := &cobra.Command{
		Use:   "authority-server",
		Short: "RFID supply-chain authority server",
		Long: `authority-server mirrors distributor hand-offs into a central ledger
and serves the distributor public-key registry that hand-off and mirror
chain validation both depend on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			logger := log.Logger

			s, err := store.NewFileStore(databaseDir)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			if importPath != "" {
				return runImport(s, importPath, logger)
			}

			priv, err := rsasig.LoadPrivateKeyFile(privateKey)
			if err != nil {
				return fmt.Errorf("load private key: %w", err)
			}

			logger.Info().Str("address", address).Int("port", port).Msg("starting authority server")

			handlers := &transport.AuthorityHandlers{Store: s, PrivateKey: priv, Logger: logger}
			srv := transport.NewServer(fmt.Sprintf("%s:%d", address, port), logger, handlers.Routes)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info().Msg("shutting down")
				_ = srv.Close()
			}()

			return srv.ListenAndServe()
		},
	}

	root.Flags().StringVar(&address, "address", "127.0.0.1", "address to bind")
	root.Flags().IntVar(&port, "port", 8080, "port to bind")
	root.Flags().StringVarP(&databaseDir, "database", "d", "db", "path to the authority's on-disk store")
	root.Flags().StringVar(&privateKey, "private-key", "", "path to the authority's RSA private key (PEM)")
	root.Flags().StringVarP(&importPath, "import", "i", "", "import a key file and exit instead of serving")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runImport(s store.Store, importPath string, logger zerolog.Logger) error {
	cfg, err := config.Load(importPath)
	if err != nil {
		return fmt.Errorf("load import file: %w", err)
	}

	for _, rec := range cfg.Import {
		if _, err := rsasig.ParsePublicKeyPEM(rec.Key); err != nil {
			logger.Warn().Str("distributor_name", rec.DistributorName).Msg("has an invalid RSA key, skipping")
			continue
		}
		if err := store.PutModel(s, rec); err != nil {
			return fmt.Errorf("store key for %s: %w", rec.DistributorName, err)
		}
		logger.Info().Str("distributor_name", rec.DistributorName).Uint32("id", uint32(rec.ID)).Msg("imported key")
	}
	return nil
}
