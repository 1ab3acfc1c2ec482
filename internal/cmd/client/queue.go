package client

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/cmd/client/transports"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/id"
)

// NewQueueCommand constructs the `queue` command group. A nil open uses
// DefaultTransport.
func NewQueueCommand(open TransportFunc) *cobra.Command {
	if open == nil {
		open = DefaultTransport
	}
	qCmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"q"},
		Short:   "Queue operations (enqueue, inspect, recover)",
		Long: `Queue operations on a sorted-set queue and its snapshot.

Item Lifecycle:
  queued → [claim] → in flight (snapshot only) → [complete] → gone
                         ↓ (worker crash)
                     [recover] → queued

Commands:
  enqueue   Add an item or change its score
  list      List queued items in claim order, or in-flight items
  stats     Show queue, snapshot and in-flight counts
  recover   Merge abandoned snapshot items back into the queue
  remove    Drop a member from the queue and the snapshot`,
	}
	addConnFlags(qCmd)
	qCmd.AddCommand(
		newQueueEnqueueCommand(open),
		newQueueListCommand(open),
		newQueueStatsCommand(open),
		newQueueRecoverCommand(open),
		newQueueRemoveCommand(open),
	)
	return qCmd
}

// nowFunc is replaced in tests.
var nowFunc = time.Now

// newQueueEnqueueCommand constructs the `queue enqueue` subcommand.
func newQueueEnqueueCommand(open TransportFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue an item",
		Long: `Enqueue an item, or update the score of an existing member.

Without --score the score is the current Unix time in seconds plus --delay,
which pairs with a ready expression such as "score <= now_s". Without
--member a sortable member is generated with --prefix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			member, _ := cmd.Flags().GetString("member")
			prefix, _ := cmd.Flags().GetString("prefix")
			score, _ := cmd.Flags().GetFloat64("score")
			delay, _ := cmd.Flags().GetDuration("delay")
			if member == "" {
				member = id.NewMember(prefix)
			}
			if !cmd.Flags().Changed("score") {
				score = float64(nowFunc().Add(delay).UnixMilli()) / 1000
			}
			item := store.Item{Score: score, Member: member}
			return withTransport(cmd, open, func(ctx context.Context, t transports.QueueTransport) error {
				if err := t.Enqueue(ctx, item); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), item)
			})
		},
	}
	cmd.Flags().String("member", "", "Member name (generated when empty)")
	cmd.Flags().String("prefix", "", "Prefix for generated members")
	cmd.Flags().Float64("score", 0, "Score (defaults to now + --delay in Unix seconds)")
	cmd.Flags().Duration("delay", 0, "Delay added to the current time when --score is not set")
	return cmd
}

// newQueueListCommand constructs the `queue list` subcommand.
func newQueueListCommand(open TransportFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued or in-flight items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			inflight, _ := cmd.Flags().GetBool("inflight")
			return withTransport(cmd, open, func(ctx context.Context, t transports.QueueTransport) error {
				items, err := t.List(ctx, transports.ListRequest{Limit: limit, InFlight: inflight})
				if err != nil {
					return err
				}
				if items == nil {
					items = []store.Item{}
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of items (0 for all)")
	cmd.Flags().Bool("inflight", false, "List claimed items that are not completed")
	return cmd
}

// newQueueStatsCommand constructs the `queue stats` subcommand.
func newQueueStatsCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransport(cmd, open, func(ctx context.Context, t transports.QueueTransport) error {
				st, err := t.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

// newQueueRecoverCommand constructs the `queue recover` subcommand.
func newQueueRecoverCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Restore abandoned in-flight items",
		Long: `Merge the snapshot back into the queue when it holds more members than
the queue. Only run this while no worker is processing the queue, or accept
that items being processed right now may be delivered again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransport(cmd, open, func(ctx context.Context, t transports.QueueTransport) error {
				rep, err := t.Recover(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

// newQueueRemoveCommand constructs the `queue remove` subcommand.
func newQueueRemoveCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <member>",
		Short: "Remove a member from the queue and the snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			member := args[0]
			return withTransport(cmd, open, func(ctx context.Context, t transports.QueueTransport) error {
				found, err := t.Remove(ctx, member)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("member %q not found", member)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"member": member, "removed": true})
			})
		},
	}
}
