package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "coinbot/internal/cli"
	"coinbot/internal/config"
	"coinbot/internal/economy"
	"coinbot/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "coin",
		Short:        "Coinbot economy client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newBalanceCmd(&apiBase),
		newPortfolioCmd(&apiBase),
		newInventoryCmd(&apiBase),
		newAchievementsCmd(&apiBase),
		newCooldownsCmd(&apiBase),
		newShopCmd(&apiBase),
		newJobsCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newEarnCmd(&apiBase),
		newBuyCmd(&apiBase),
		newDailyCmd(&apiBase),
		newWorkCmd(&apiBase),
		newCollectCmd(&apiBase),
		newInvestCmd(&apiBase),
		newPlayCmd(&apiBase),
		newTradeCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// session loads the saved session and a client bound to it. A base URL saved
// at login wins over the default but not over an explicit --api flag.
func session(cmd *cobra.Command, apiBase *string) (*cl.Client, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("login required: %w", err)
	}
	base := *apiBase
	if sess.BaseURL != "" && !cmd.Flags().Changed("api") {
		base = sess.BaseURL
	}
	return cl.NewClient(strings.TrimSpace(base), sess), nil
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login [user_id]",
		Short: "Save the user id and API token to act as",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				userID string
				err    error
			)
			if len(args) > 0 {
				userID = strings.TrimSpace(args[0])
			} else if userID, err = promptRequired("User ID"); err != nil {
				return err
			}
			token, err := promptOptional("API token (optional)")
			if err != nil {
				return err
			}
			sess := cl.Session{UserID: userID, APIToken: token}
			if cmd.Flags().Changed("api") {
				sess.BaseURL = *apiBase
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Session saved for " + userID + ".")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

// read runs a GET-style call against the session client and renders it.
func read(apiBase *string, call func(context.Context, *cl.Client) (map[string]any, error), render func(map[string]any) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		client, err := session(cmd, apiBase)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		out, err := call(ctx, client)
		if err != nil {
			return err
		}
		return render(out)
	}
}

// write sends one mutating request under a fresh idempotency key. If the
// server cannot be reached, or asks to be retried later, the request is
// queued for `coin sync`.
func write(cmd *cobra.Command, apiBase *string, call cl.Call, render func(map[string]any) error) error {
	client, err := session(cmd, apiBase)
	if err != nil {
		return err
	}
	idem := uuid.NewString()
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := client.Send(ctx, call, idem)
	if err != nil {
		return queueUndelivered(err, syncq.Command{
			Method:         call.Method,
			Path:           call.Path,
			Body:           call.Body,
			IdempotencyKey: idem,
		})
	}
	return render(out)
}

func newBalanceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show your balance",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.Balance(ctx)
		}, renderBalance),
	}
}

func newPortfolioCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show balance, investment, inventory and achievements",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.Portfolio(ctx)
		}, renderPortfolio),
	}
}

func newInventoryCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Show your items",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.Inventory(ctx)
		}, renderInventory),
	}
}

func newAchievementsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "achievements",
		Short: "Show your unlocked achievements",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.Achievements(ctx)
		}, renderAchievements),
	}
}

func newCooldownsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cooldowns",
		Short: "Show when daily and work can next be claimed",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.Cooldowns(ctx)
		}, renderCooldowns),
	}
}

func newShopCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "shop",
		Short: "List items for sale",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.Shop(ctx)
		}, renderShop),
	}
}

func newJobsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs and their payouts",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.Jobs(ctx)
		}, renderJobs),
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	limit := 10
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
				return c.Leaderboard(ctx, limit)
			}, renderLeaderboard)(cmd, args)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", limit, "rows to show (1-100)")
	return cmd
}

func newEarnCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "earn [coins]",
		Short: "Earn coins",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := coinsFromArgOrPrompt(args, 0, "Coins")
			if err != nil {
				return err
			}
			return write(cmd, apiBase, cl.EarnCall(amount), func(out map[string]any) error {
				return renderBalanceChange(out, fmt.Sprintf("Earned %s coins.", economy.FormatMicros(amount)))
			})
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [item] [quantity]",
		Short: "Buy items from the shop",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := stringFromArgOrPrompt(args, 0, "Item")
			if err != nil {
				return err
			}
			qty, err := int64FromArgOrPrompt(args, 1, "Quantity")
			if err != nil {
				return err
			}
			return write(cmd, apiBase, cl.BuyCall(item, qty), renderPurchase)
		},
	}
}

func newDailyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Claim your daily reward",
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd, apiBase, cl.DailyCall(), renderPayout)
		},
	}
}

func newWorkCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "work [job]",
		Short: "Work one job for its fixed payout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := stringFromArgOrPrompt(args, 0, "Job")
			if err != nil {
				return err
			}
			return write(cmd, apiBase, cl.WorkCall(job), renderPayout)
		},
	}
}

func newCollectCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Collect the payout of every job at once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd, apiBase, cl.CollectCall(), renderPayout)
		},
	}
}

func newInvestCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "invest [coins]",
		Short: "Move coins from balance into principal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := coinsFromArgOrPrompt(args, 0, "Coins")
			if err != nil {
				return err
			}
			return write(cmd, apiBase, cl.InvestCall(amount), renderInvest)
		},
	}
}

func newPlayCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:       "play [game]",
		Short:     "Play mini_game, coin_flip or blackjack",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: economy.GameNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				name string
				err  error
			)
			if len(args) > 0 {
				name = strings.ToLower(strings.TrimSpace(args[0]))
			} else if name, err = promptChoice("Game", economy.GameNames(), economy.GameCoinFlip); err != nil {
				return err
			}
			return write(cmd, apiBase, cl.PlayCall(name), renderGame)
		},
	}
}

func newTradeCmd(apiBase *string) *cobra.Command {
	trade := &cobra.Command{
		Use:   "trade",
		Short: "Offer, accept and cancel item trades",
	}
	trade.AddCommand(&cobra.Command{
		Use:   "offer [target] [item] [quantity]",
		Short: "Offer items to another user",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := stringFromArgOrPrompt(args, 0, "Target user ID")
			if err != nil {
				return err
			}
			item, err := stringFromArgOrPrompt(args, 1, "Item")
			if err != nil {
				return err
			}
			qty, err := int64FromArgOrPrompt(args, 2, "Quantity")
			if err != nil {
				return err
			}
			return write(cmd, apiBase, cl.ProposeTradeCall(target, item, qty), func(out map[string]any) error {
				return renderTrade(out, "Offer sent")
			})
		},
	})
	trade.AddCommand(&cobra.Command{
		Use:   "accept",
		Short: "Accept the oldest offer addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd, apiBase, cl.AcceptTradeCall(), func(out map[string]any) error {
				return renderTrade(out, "Trade accepted")
			})
		},
	})
	trade.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Withdraw your outstanding offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd, apiBase, cl.CancelTradeCall(), func(out map[string]any) error {
				return renderTrade(out, "Offer withdrawn")
			})
		},
	})
	trade.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List offers waiting for you",
		RunE: read(apiBase, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
			return c.PendingTrades(ctx)
		}, renderPendingTrades),
	})
	return trade
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the server was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := session(cmd, apiBase)
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			report, err := syncq.Replay(ctx, func(ctx context.Context, q syncq.Command) error {
				_, err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey)
				return err
			}, syncq.Policy{
				Refused:    cl.Refused,
				RetryAfter: cl.RetryAfter,
				MaxWait:    45 * time.Second,
			})
			if err != nil {
				return err
			}
			for _, r := range report.Rejected {
				printError(fmt.Sprintf("Rejected %s %s: %s", r.Command.Method, r.Command.Path, r.Error))
			}
			if report.Remaining > 0 {
				printWarn(fmt.Sprintf("Server unreachable or busy, %d write(s) still queued.", report.Remaining))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d retried=%d rejected=%d remaining=%d", report.Applied, report.Retried, len(report.Rejected), report.Remaining))
			return nil
		},
	}
}

func queueUndelivered(err error, q syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.Refused(err) {
		return err
	}
	if qerr := syncq.Push(q); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", err)
	}
	if cl.IsAPIError(err) {
		printWarn("Server busy. Queued for `coin sync`.")
		return nil
	}
	printWarn("Server unreachable. Queued for `coin sync`.")
	return nil
}

func stringFromArgOrPrompt(args []string, idx int, label string) (string, error) {
	if len(args) > idx {
		return strings.TrimSpace(args[idx]), nil
	}
	return promptRequired(label)
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}

// coinsFromArgOrPrompt reads a coin amount, which may carry decimals, and
// returns micros.
func coinsFromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	var (
		v   float64
		err error
	)
	if len(args) > idx {
		v, err = strconv.ParseFloat(strings.TrimSpace(args[idx]), 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
	} else if v, err = promptFloat(label, 0); err != nil {
		return 0, err
	}
	micros := economy.CoinsToMicros(v)
	if micros <= 0 {
		return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
	}
	return micros, nil
}
