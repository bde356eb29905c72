// Command orectl drives a running autominer through its control API.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ore-autominer/internal/config"
)

type rootOptions struct {
	apiURL   string
	wsURL    string
	adminKey string
	wallet   string
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.apiURL, o.adminKey)
}

func (o *rootOptions) requireWallet() (string, error) {
	if o.wallet == "" {
		return "", errors.New("--wallet or ORECTL_WALLET is required")
	}
	return o.wallet, nil
}

func newRootCmd(cfg config.CtlConfig) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "orectl",
		Short:         "Operate an ORE autominer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", cfg.APIURL, "control API base URL")
	root.PersistentFlags().StringVar(&opts.wsURL, "ws", cfg.WSURL, "event WebSocket URL")
	root.PersistentFlags().StringVar(&opts.adminKey, "admin-key", cfg.AdminKey, "admin API key")
	root.PersistentFlags().StringVarP(&opts.wallet, "wallet", "w", cfg.Wallet, "wallet address")

	root.AddCommand(
		newSessionCmd(opts),
		newWalletCmd(opts),
		newBalancesCmd(opts),
		newClaimCmd(opts),
		newRoundCmd(opts),
		newTailCmd(opts),
	)
	return root
}

func printData(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadCtl()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
