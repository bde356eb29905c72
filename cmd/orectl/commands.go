package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Start, stop and inspect mining sessions"}

	var (
		strategy  string
		deploy    string
		maxTip    string
		budget    string
		numBlocks int
	)
	start := &cobra.Command{
		Use:   "start",
		Short: "Start mining for the wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := opts.requireWallet()
			if err != nil {
				return err
			}
			data, err := opts.client().post(cmd.Context(), "/api/session/start", map[string]any{
				"wallet":        wallet,
				"strategy":      strategy,
				"deploy_amount": deploy,
				"max_tip":       maxTip,
				"budget":        budget,
				"num_blocks":    numBlocks,
			})
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
	start.Flags().StringVar(&strategy, "strategy", "best_ev", "best_ev|conservative|aggressive")
	start.Flags().StringVar(&deploy, "deploy", "", "SOL per block")
	start.Flags().StringVar(&maxTip, "max-tip", "0.001", "max Jito tip in SOL")
	start.Flags().StringVar(&budget, "budget", "", "total SOL the session may spend")
	start.Flags().IntVar(&numBlocks, "blocks", 1, "blocks per round")
	_ = start.MarkFlagRequired("deploy")
	_ = start.MarkFlagRequired("budget")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the wallet's active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := opts.requireWallet()
			if err != nil {
				return err
			}
			data, err := opts.client().post(cmd.Context(), "/api/session/stop", map[string]string{"wallet": wallet})
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}

	cmd.AddCommand(start, stop,
		walletGet(opts, "status", "Show the active or latest session", "/api/session/status"),
		walletGet(opts, "stats", "Show session stats", "/api/stats"),
		pagedGet(opts, "transactions", "List deployments", "/api/transactions"),
	)
	return cmd
}

func newWalletCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "Manage hot wallets"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List managed wallets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := opts.client().get(cmd.Context(), "/api/wallet/list", nil)
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}

	var label string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := opts.client().post(cmd.Context(), "/api/wallet/generate", map[string]string{"label": label})
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
	generate.Flags().StringVar(&label, "label", "", "wallet label")

	importCmd := &cobra.Command{
		Use:   "import <base58-secret>",
		Short: "Import a wallet from its base58 secret key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().post(cmd.Context(), "/api/wallet/import", map[string]string{"private_key": args[0], "label": label})
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
	importCmd.Flags().StringVar(&label, "label", "", "wallet label")

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the wallet's secret key (admin key required)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := opts.requireWallet()
			if err != nil {
				return err
			}
			data, err := opts.client().post(cmd.Context(), "/api/wallet/export", map[string]string{"wallet_address": wallet})
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}

	cmd.AddCommand(list, generate, importCmd, export)
	return cmd
}

func newBalancesCmd(opts *rootOptions) *cobra.Command {
	var sync, history bool
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show unclaimed balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := opts.requireWallet()
			if err != nil {
				return err
			}
			c := opts.client()
			var data []byte
			switch {
			case sync:
				data, err = c.post(cmd.Context(), "/api/balances/sync", map[string]string{"wallet": wallet})
			case history:
				data, err = c.get(cmd.Context(), "/api/balances/history", url.Values{"wallet": {wallet}})
			default:
				data, err = c.get(cmd.Context(), "/api/balances", url.Values{"wallet": {wallet}})
			}
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "refresh from chain first")
	cmd.Flags().BoolVar(&history, "history", false, "show balance history")
	return cmd
}

func newClaimCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "claim", Short: "Claim unclaimed rewards"}
	for _, kind := range []string{"sol", "ore"} {
		var amount string
		sub := &cobra.Command{
			Use:   kind,
			Short: "Claim " + kind + ", everything when --amount is omitted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				wallet, err := opts.requireWallet()
				if err != nil {
					return err
				}
				body := map[string]any{"wallet": wallet}
				if amount != "" {
					body["amount"] = amount
				}
				data, err := opts.client().post(cmd.Context(), "/api/claim/"+kind, body)
				if err != nil {
					return err
				}
				return printData(cmd.OutOrStdout(), data)
			},
		}
		sub.Flags().StringVar(&amount, "amount", "", "amount to claim")
		cmd.AddCommand(sub)
	}
	cmd.AddCommand(pagedGet(opts, "history", "List past claims", "/api/claims/history"))
	return cmd
}

func newRoundCmd(opts *rootOptions) *cobra.Command {
	var deploy, tip string
	cmd := &cobra.Command{
		Use:   "round",
		Short: "Show the live round scored for a deploy amount",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if deploy != "" {
				q.Set("deploy", deploy)
			}
			if tip != "" {
				q.Set("tip", tip)
			}
			data, err := opts.client().get(cmd.Context(), "/api/round", q)
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&deploy, "deploy", "", "SOL per block, default 0.01")
	cmd.Flags().StringVar(&tip, "tip", "", "tip in SOL")
	return cmd
}

func walletGet(opts *rootOptions, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := opts.requireWallet()
			if err != nil {
				return err
			}
			data, err := opts.client().get(cmd.Context(), path, url.Values{"wallet": {wallet}})
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
}

func pagedGet(opts *rootOptions, use, short, path string) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := opts.requireWallet()
			if err != nil {
				return err
			}
			q := url.Values{"wallet": {wallet}, "limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
			data, err := opts.client().get(cmd.Context(), path, q)
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}
