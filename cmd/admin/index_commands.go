package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nanitecraft.ai/internal/persistence/indexdb"
)

func withReader(opts *options, fn func(ctx context.Context, r *indexdb.Reader) error) error {
	r, err := indexdb.OpenReader(opts.indexPath())
	if err != nil {
		return fmt.Errorf("open index %s: %w", opts.indexPath(), err)
	}
	defer r.Close()
	return fn(context.Background(), r)
}

func newSnapshotListCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(opts, func(ctx context.Context, r *indexdb.Reader) error {
				snaps, err := r.Snapshots(ctx, limit)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd, snaps)
				}
				rows := make([][]string, 0, len(snaps))
				for _, s := range snaps {
					rows = append(rows, []string{
						strconv.FormatUint(s.Tick, 10), s.SessionID, strconv.Itoa(s.Chunks), strconv.Itoa(s.Claims),
						strconv.Itoa(s.Active), strconv.Itoa(s.Mined), strconv.FormatUint(s.Completed, 10), s.Path,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Tick", "Session", "Chunks", "Claims", "Active", "Mined", "Completed", "Path"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum snapshots to list")
	return cmd
}

func newOutcomesCommand(opts *options) *cobra.Command {
	var station string
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Aggregate indexed target events by station and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(opts, func(ctx context.Context, r *indexdb.Reader) error {
				counts, err := r.Outcomes(ctx, station)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd, counts)
				}
				rows := make([][]string, 0, len(counts))
				for _, c := range counts {
					rows = append(rows, []string{c.Station, c.Kind, c.Outcome, strconv.Itoa(c.Count), formatAmount(c.Amount)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Station", "Kind", "Outcome", "Count", "Amount"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&station, "station", "", "only this station")
	return cmd
}

func newStationsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "Show station state as of the last indexed snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(opts, func(ctx context.Context, r *indexdb.Reader) error {
				stations, err := r.Stations(ctx)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd, stations)
				}
				rows := make([][]string, 0, len(stations))
				for _, s := range stations {
					rows = append(rows, []string{
						s.ID, strconv.FormatUint(s.Tick, 10), yesNo(s.Enabled), strconv.Itoa(s.UserTargetCap),
						strconv.Itoa(s.Active), strconv.Itoa(s.PotentialTargets), s.LastReason,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Station", "Tick", "Enabled", "User cap", "Active", "Potential", "Last reason"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newAuditsCommand(opts *options) *cobra.Command {
	var field, pos string
	var limit int
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Show the audit history of one cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseVec3(pos)
			if err != nil {
				return fmt.Errorf("--pos: %w", err)
			}
			if field == "" {
				return fmt.Errorf("--field is required")
			}
			return withReader(opts, func(ctx context.Context, r *indexdb.Reader) error {
				audits, err := r.Audits(ctx, field, p, limit)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd, audits)
				}
				rows := make([][]string, 0, len(audits))
				for _, a := range audits {
					rows = append(rows, []string{
						strconv.FormatUint(a.Tick, 10), a.Station, a.Action, a.Outcome, a.Item, formatAmount(a.Amount), a.Reason,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Tick", "Station", "Action", "Outcome", "Item", "Amount", "Reason"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "field id")
	cmd.Flags().StringVar(&pos, "pos", "", "local cell position x,y,z")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
