package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shopkit/cartsync"
	"github.com/shopkit/cartsync/gateway/memgateway"
	"github.com/shopkit/cartsync/logging"
	"github.com/shopkit/cartsync/opqueue"
	"github.com/shopkit/cartsync/replica"
	"github.com/shopkit/cartsync/storage/memory"
)

// NewDemoCommand creates the demo command. It walks a guest through an
// offline session, sign-in and reconnect against an in-memory backend,
// printing the cart after each phase.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	userID := "demo-user"

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted guest/offline/online shopping session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, rootOpts, userID)
		},
	}

	cmd.Flags().StringVar(&userID, "user", userID, "user id to sign in as")

	return cmd
}

func runDemo(cmd *cobra.Command, rootOpts *RootOptions, userID string) error {
	level := "warn"
	if rootOpts.Verbose {
		level = "debug"
	}
	logger := logging.NewLogger(logging.Config{Level: level, Format: "text"})

	cfg := cartsync.DefaultConfig()
	if rootOpts.ConfigPath != "" {
		loaded, err := cartsync.LoadConfig(rootOpts.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	server := memgateway.New()
	server.Seed(userID, []cartsync.RemoteItem{
		{ProductID: "p1", Quantity: 1, UnitPrice: 19.99},
	})

	cartKV := memory.New()
	savedKV := memory.New()

	client, err := cartsync.NewClient(
		cartsync.WithCartInstance(
			replica.New(cartKV, replica.Options{
				List:      cartsync.ListCart,
				TTL:       cfg.Cart.TTL(),
				EvictKeep: cfg.Cart.EvictKeep,
				Logger:    logger,
			}),
			opqueue.New(cartKV, opqueue.Options{
				List:       cartsync.ListCart,
				MaxRetries: cfg.Cart.MaxRetries,
				Logger:     logger,
			}),
			server,
		),
		cartsync.WithSavedInstance(
			replica.New(savedKV, replica.Options{
				List:      cartsync.ListSaved,
				TTL:       cfg.Saved.TTL(),
				EvictKeep: cfg.Saved.EvictKeep,
				Logger:    logger,
			}),
			opqueue.New(savedKV, opqueue.Options{
				List:       cartsync.ListSaved,
				MaxRetries: cfg.Saved.MaxRetries,
				Logger:     logger,
			}),
			server,
		),
		cartsync.WithConflictPolicy(cfg.ConflictPolicy),
		cartsync.WithLogger(logger),
		cartsync.WithInitialOnline(false),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "phase 1: guest, offline")
	if _, err := client.Cart().AddItem(ctx, "p1", 2, 19.99, cartsync.Snapshot{Name: "Espresso beans"}); err != nil {
		return err
	}
	if _, err := client.Cart().AddItem(ctx, "p2", 1, 4.50, cartsync.Snapshot{Name: "Filter pack"}); err != nil {
		return err
	}
	if err := printState(ctx, out, client); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nphase 2: sign in as %s (still offline, sync deferred)\n", userID)
	if _, err := client.SetSession(ctx, cartsync.Session{Authenticated: true, UserID: userID}); err != nil {
		return err
	}
	if _, err := client.Cart().UpdateQuantity(ctx, "p2", 3); err != nil {
		return err
	}
	if err := printState(ctx, out, client); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nphase 3: reconnect, merge and drain")
	results, err := client.SetOnline(ctx, true)
	if err != nil {
		return err
	}
	for _, result := range results {
		if result == nil {
			continue
		}
		fmt.Fprintf(out, "  %s: merged=%d applied=%d dropped=%d\n",
			result.List, result.MergedItems, result.OpsApplied, result.OpsDropped)
	}
	if err := printState(ctx, out, client); err != nil {
		return err
	}

	return nil
}

func printState(ctx context.Context, out io.Writer, client *cartsync.Client) error {
	view, err := client.Cart().GetState(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  cart (%s, source=%s):\n", view.Mode, view.Source)
	switch {
	case view.Remote != nil:
		for _, item := range view.Remote.Items {
			fmt.Fprintf(out, "    %-4s x%d @ %.2f\n", item.ProductID, item.Quantity, item.UnitPrice)
		}
	case view.Local != nil:
		for _, item := range view.Local.Items {
			fmt.Fprintf(out, "    %-4s x%d @ %.2f\n", item.ProductID, item.Quantity, item.UnitPrice)
		}
	default:
		fmt.Fprintln(out, "    (empty)")
	}
	return nil
}
