package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/floorline/api/internal/client"
	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/offline"
	"github.com/floorline/api/internal/service"
	"github.com/floorline/api/internal/syncfeed"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func healthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func watchCmd(opts *options) *cobra.Command {
	var (
		topics []string
		table  int32
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow active orders and tables, draining the offline queue on reconnect",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := opts.client()
			var fetcher syncfeed.Fetcher = syncfeed.StaffFetcher{Client: c}
			if table != 0 {
				fetcher = syncfeed.TableFetcher{Client: c, TableNumber: table}
			}
			wsURL, err := c.WebsocketURL(topics...)
			if err != nil {
				return err
			}

			queue, err := opts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer queue.Close()

			logger := opts.logger(cmd)
			feed := syncfeed.New(fetcher, wsURL, opts.cfg.PollInterval, logger)
			out := cmd.OutOrStdout()
			feed.OnRefresh = func(s syncfeed.Snapshot) { printSnapshot(out, s) }

			monitor := offline.NewMonitor(c, queue, opts.cfg.HealthInterval, logger)
			monitor.OnChange = func(online bool) {
				state := "offline"
				if online {
					state = "online"
				}
				fmt.Fprintf(out, "-- %s\n", state)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return feed.Run(gctx) })
			g.Go(func() error { return monitor.Run(gctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "Push topics (default: all staff topics)")
	cmd.Flags().Int32Var(&table, "table", 0, "Follow a single table (customer devices)")
	return cmd
}

func orderCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create orders and advance their status",
	}
	var floor bool
	cmd.PersistentFlags().BoolVar(&floor, "floor", false, "Print the floor with the change applied")

	var (
		table  int32
		items  []string
		waiter string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an order, e.g. --table 5 --item kebab:2 --item tea:1:less sugar",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := client.CreateOrderInput{TableNumber: table, WaiterName: waiter}
			for _, raw := range items {
				line, err := parseLine(raw)
				if err != nil {
					return err
				}
				in.Lines = append(in.Lines, line)
			}
			var out client.CreateOrderOutput
			queued, err := submit(cmd, opts, enum.QueueOrderCreate, in, &out, func() string {
				return fmt.Sprintf("order %s created, total %s", out.OrderID, out.Order.Total)
			})
			if err == nil && !queued && floor {
				showFloor(cmd, opts, out.Order)
			}
			return err
		},
	}
	create.Flags().Int32Var(&table, "table", 0, "Table number")
	create.Flags().StringArrayVar(&items, "item", nil, "Line as menu_item_id:quantity[:notes]")
	create.Flags().StringVar(&waiter, "waiter", "", "Waiter name")

	status := &cobra.Command{
		Use:   "status ORDER_ID STATUS",
		Short: "Advance an order to its next status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := client.UpdateStatusInput{OrderID: args[0], Status: args[1]}
			var out service.Order
			queued, err := submit(cmd, opts, enum.QueueStatusUpdate, in, &out, func() string {
				return fmt.Sprintf("order %s is now %s", args[0], out.Status)
			})
			if err == nil && !queued && floor {
				showFloor(cmd, opts, out)
			}
			return err
		},
	}

	cmd.AddCommand(create, status)
	return cmd
}

func requestCmd(opts *options) *cobra.Command {
	var (
		table int32
		kind  string
		notes string
	)
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Call a waiter, ask for the bill or request assistance",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := client.ServiceRequestInput{TableNumber: table, Kind: kind, Notes: notes}
			var out struct {
				ID string `json:"id"`
			}
			_, err := submit(cmd, opts, enum.QueueServiceRequest, in, &out, func() string {
				return fmt.Sprintf("request %s sent", out.ID)
			})
			return err
		},
	}
	cmd.Flags().Int32Var(&table, "table", 0, "Table number")
	cmd.Flags().StringVar(&kind, "kind", enum.ServiceRequestCallWaiter, "call_waiter, request_bill or assistance")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes for staff")
	return cmd
}

// submit sends a command, queueing it when the API is unreachable.
func submit(cmd *cobra.Command, opts *options, typ string, in, out any, done func() string) (bool, error) {
	queue, err := opts.openQueue(cmd)
	if err != nil {
		return false, err
	}
	defer queue.Close()

	queued, err := queue.Submit(cmd.Context(), typ, in, out)
	if err != nil {
		return false, err
	}
	if queued {
		fmt.Fprintln(cmd.OutOrStdout(), "API unreachable; command queued and will be sent on reconnect")
		return true, nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), done())
	return false, nil
}

// showFloor re-reads the floor and lays the order just written over it, so
// the printout reflects the write even when the re-read fails or is stale.
func showFloor(cmd *cobra.Command, opts *options, o service.Order) {
	cache := syncfeed.NewCache()
	snap, err := syncfeed.StaffFetcher{Client: opts.client()}.Fetch(cmd.Context())
	if err != nil {
		opts.logger(cmd).Printf("WARN: floor: %v", err)
	} else {
		cache.Replace(snap)
	}
	cache.ApplyLocal(o)
	printSnapshot(cmd.OutOrStdout(), syncfeed.Snapshot{
		Orders:    cache.ActiveOrders(),
		Tables:    cache.Tables(),
		FetchedAt: time.Now(),
	})
}

func queueCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the offline queue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List commands waiting for delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := opts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer queue.Close()

			entries, err := queue.Pending(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tENQUEUED\tATTEMPTS\tPAYLOAD")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", e.ID, e.Type, e.EnqueuedAt.Local().Format("15:04:05"), e.Attempts, e.Payload)
			}
			return w.Flush()
		},
	}

	rejected := &cobra.Command{
		Use:   "rejected",
		Short: "List commands the server refused during a drain",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := opts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer queue.Close()

			entries, err := queue.Rejected(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}

	drain := &cobra.Command{
		Use:   "drain",
		Short: "Send queued commands now",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := opts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer queue.Close()

			res, err := queue.Drain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d, rejected %d, remaining %d\n", res.Delivered, res.Rejected, res.Remaining)
			if res.Blocked {
				fmt.Fprintln(cmd.OutOrStdout(), "API unreachable; remaining commands stay queued")
			}
			return nil
		},
	}

	cmd.AddCommand(list, rejected, drain)
	return cmd
}

// parseLine reads "menu_item_id:quantity[:notes]".
func parseLine(raw string) (client.OrderLineInput, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return client.OrderLineInput{}, fmt.Errorf("item %q: want menu_item_id:quantity[:notes]", raw)
	}
	qty, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return client.OrderLineInput{}, fmt.Errorf("item %q: quantity: %w", raw, err)
	}
	line := client.OrderLineInput{MenuItemID: parts[0], Quantity: int32(qty)}
	if len(parts) == 3 {
		line.Notes = parts[2]
	}
	return line, nil
}

func printSnapshot(w io.Writer, s syncfeed.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "== %s\n", s.FetchedAt.Format("15:04:05"))
	for _, t := range s.Tables {
		order := "-"
		if t.CurrentOrderID != nil {
			order = t.CurrentOrderID.String()[:8]
		}
		fmt.Fprintf(tw, "table %d\t%s\t%s\n", t.Number, t.Status, order)
	}
	for _, o := range s.Orders {
		fmt.Fprintf(tw, "order %s\ttable %d\t%s\t%s\n", o.ID.String()[:8], o.TableNumber, o.Status, o.Total)
	}
	tw.Flush()
}
