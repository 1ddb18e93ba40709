package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cl "streamerstock/internal/cli"
	"streamerstock/internal/config"
	"streamerstock/internal/session"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "sst",
		Short:        "StreamerStock Tycoon client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "game server base URL")

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(&apiBase),
		newDashCmd(&apiBase),
		newTradeCmd(&apiBase, "buy"),
		newTradeCmd(&apiBase, "sell"),
		newTravelCmd(&apiBase),
		newLocationsCmd(&apiBase),
		newUpgradesCmd(&apiBase),
		newUpgradeCmd(&apiBase),
		newEventsCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with the server's identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			printInfo("Signing in. If the server uses Twitch, approve the code shown in its terminal.")
			st, err := newClient(apiBase).Login(cmd.Context())
			if err != nil {
				return explain(err)
			}
			renderMessage(st)
			return renderDashboard(st)
		},
	}
}

func newLogoutCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the game session and record the final score",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).Logout(ctx)
			if err != nil {
				return explain(err)
			}
			renderMessage(st)
			return nil
		},
	}
}

func newDashCmd(apiBase *string) *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Show player stats and the current market",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(apiBase)
			if watch <= 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				st, err := client.State(ctx)
				if err != nil {
					return explain(err)
				}
				renderMessage(st)
				return renderDashboard(st)
			}

			ticker := time.NewTicker(watch)
			defer ticker.Stop()
			for {
				st, err := client.State(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return explain(err)
				}
				fmt.Print("\033[H\033[2J")
				renderMessage(st)
				if err := renderDashboard(st); err != nil {
					return err
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "refresh interval, e.g. 2s (0 shows once)")
	return cmd
}

func newTradeCmd(apiBase *string, side string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " [commodity] [quantity]",
		Short: strings.ToUpper(side[:1]) + side[1:] + " a commodity at the current location",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			commodityID, err := stringFromArgOrPrompt(args, 0, "Commodity ID")
			if err != nil {
				return err
			}
			qty, err := int64FromArgOrPrompt(args, 1, "Quantity")
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			var st session.State
			if side == "buy" {
				st, err = client.Buy(ctx, commodityID, qty)
			} else {
				st, err = client.Sell(ctx, commodityID, qty)
			}
			if err != nil {
				return explain(err)
			}
			renderMessage(st)
			return renderMarket(st)
		},
	}
}

func newTravelCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "travel [location]",
		Short: "Move to another platform; holdings not traded there are dropped",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locationID, err := stringFromArgOrPrompt(args, 0, "Location ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).Travel(ctx, locationID)
			if err != nil {
				return explain(err)
			}
			renderMessage(st)
			return renderDashboard(st)
		},
	}
}

func newLocationsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List platforms you can travel to",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).State(ctx)
			if err != nil {
				return explain(err)
			}
			return renderLocations(st)
		},
	}
}

func newUpgradesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrades",
		Short: "List upgrades and their channel point cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).State(ctx)
			if err != nil {
				return explain(err)
			}
			return renderUpgrades(st)
		},
	}
}

func newUpgradeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade [id]",
		Short: "Buy an upgrade with channel points",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upgradeID, err := stringFromArgOrPrompt(args, 0, "Upgrade ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).PurchaseUpgrade(ctx, upgradeID)
			if err != nil {
				return explain(err)
			}
			renderMessage(st)
			return renderUpgrades(st)
		},
	}
}

func newEventsCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show your most recent game events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			events, err := newClient(apiBase).Events(ctx, limit)
			if err != nil {
				return explain(err)
			}
			return renderEvents(events)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show")
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top final scores across finished sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx, limit)
			if err != nil {
				return explain(err)
			}
			return renderLeaderboard(rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows to show")
	return cmd
}

// explain prints a rejection with the unchanged state and turns it into a
// short error for the exit status.
func explain(err error) error {
	var apiErr *cl.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("request failed: %w", err)
	}
	switch {
	case apiErr.Rejected():
		printWarn(apiErr.Message)
		if apiErr.State != nil {
			_ = renderStats(*apiErr.State)
		}
		return errors.New("action rejected")
	case apiErr.Status == 401:
		return errors.New("not signed in; run `sst login`")
	default:
		return apiErr
	}
}

func stringFromArgOrPrompt(args []string, idx int, label string) (string, error) {
	if len(args) > idx {
		return strings.ToLower(strings.TrimSpace(args[idx])), nil
	}
	v, err := promptRequired(label)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(v)), nil
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
