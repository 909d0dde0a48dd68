package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue offers once and move their bookings on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			res := s.eng.Sweep(cmd.Context())
			return printResult(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
				fmt.Fprintf(w, "expired %d, advanced %d, retried %d, reclaimed %d, skipped %d, failed %d\n",
					res.Expired, res.Advanced, res.Retried, res.Reclaimed, res.Skipped, res.Failed)
			})
		},
	}
}

func newRedispatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "redispatch <booking>",
		Short: "Force dispatch of a pending or stalled booking",
		Long: `Force dispatch of a booking given by numeric id or UUID.

A pending booking starts dispatch from scratch. A booking that is searching
with no open offer is offered to the next vendor it has not seen yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bookingCommand(cmd, opts, args[0], func(ctx context.Context, d *dispatch.Dispatcher, id int64) error {
				return d.Redispatch(ctx, id)
			})
		},
	}
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <booking>",
		Short: "Cancel a booking and release its vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bookingCommand(cmd, opts, args[0], func(ctx context.Context, d *dispatch.Dispatcher, id int64) error {
				return d.CancelBooking(ctx, id, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", dispatch.ReasonOperator, "cancellation reason")
	return cmd
}

// bookingCommand runs fn on the referenced booking and prints the result.
// An action that does not apply to the booking's state is reported, not
// treated as a failure.
func bookingCommand(cmd *cobra.Command, opts *rootOptions, ref string, fn func(context.Context, *dispatch.Dispatcher, int64) error) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	b, err := resolveBooking(s.eng.DB(), ref)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := fn(cmd.Context(), s.eng.Dispatcher(), b.ID); err != nil {
		if !errors.Is(err, dispatch.ErrInvalidState) {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "nothing to do: %v\n", err)
	}

	b, err = s.eng.DB().GetBooking(b.ID)
	if err != nil {
		return err
	}
	return printResult(out, opts, b, func(w io.Writer) {
		fmt.Fprintf(w, "booking %d (%s) is %s", b.ID, b.UUID, b.Status)
		if b.CancelReason != "" {
			fmt.Fprintf(w, ": %s", b.CancelReason)
		}
		fmt.Fprintln(w)
	})
}

func resolveBooking(db *store.DB, ref string) (*store.Booking, error) {
	var (
		b   *store.Booking
		err error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		b, err = db.GetBooking(id)
	} else {
		b, err = db.GetBookingByUUID(ref)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrBookingNotFound, ref)
	}
	return b, err
}

func newVendorsCommand(opts *rootOptions) *cobra.Command {
	var availability string
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "List vendors, optionally by availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if availability != "" && !directory.ValidAvailability(availability) {
				return fmt.Errorf("%w: %q", directory.ErrInvalidAvailability, availability)
			}
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			var vendors []*store.Vendor
			if availability != "" {
				vendors, err = s.eng.DB().ListVendorsByAvailability(availability)
			} else {
				vendors, err = s.eng.DB().ListVendors()
			}
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, vendors, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tVEHICLE\tCAPACITY_KG\tAVAILABILITY")
				for _, v := range vendors {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%.0f\t%s\n", v.ID, v.Name, v.VehicleType, v.CapacityKg, v.Availability)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&availability, "availability", "", "filter by availability (in|out|requested|booked)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "dispatchctl", Version)
		},
	}
}
