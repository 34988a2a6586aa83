// Command distributor-node runs one distributor's hand-off endpoint: it
// appends this distributor's signature to an incoming chip payload and
// relays the update to the authority-server.
package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/rsasig"
	"github.com/icprovenance/rfidchain/transport"
)

func main() {
	var (
		address           string
		port              int
		keyID             uint32
		privateKey        string
		centralServerAddr string
		verbose           bool
	)

	root := &cobra.Command{
		Use:   "distributor-node",
		Short: "RFID supply-chain distributor hand-off node",
		Long: `distributor-node serves one distributor's hand-off endpoint: it appends
this distributor's signature to an incoming chip payload, validates the
resulting chain, and relays the update to the authority-server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			logger := log.Logger

			priv, err := rsasig.LoadPrivateKeyFile(privateKey)
			if err != nil {
				return fmt.Errorf("load private key: %w", err)
			}

			central, err := url.Parse(centralServerAddr)
			if err != nil {
				return fmt.Errorf("parse central server address: %w", err)
			}

			logger.Info().Str("address", address).Int("port", port).Uint32("key_id", keyID).Msg("starting distributor node")

			handlers := &transport.DistributorHandlers{
				CentralServerAddr: central,
				KeyID:             chiptelemetry.DistributorID(keyID),
				PrivateKey:        priv,
				Logger:            logger,
			}
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
	root.Flags().IntVar(&port, "port", 8081, "port to bind")
	root.Flags().Uint32Var(&keyID, "key-id", 0, "this distributor's id in the key registry")
	root.Flags().StringVar(&privateKey, "private-key", "", "path to this distributor's RSA private key (PEM)")
	root.Flags().StringVar(&centralServerAddr, "central-server-addr", "http://127.0.0.1:8080", "base URL of the authority server")

	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
