package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nanitecraft.ai/internal/persistence/snapshot"
)

func newSnapshotCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "snapshot",
		Short: "Take, list and inspect session snapshots",
	}
	root.AddCommand(&cobra.Command{
		Use:   "take",
		Short: "Ask the running server to write a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := call(opts, http.MethodPost, "/admin/v1/snapshot", nil, &out); err != nil {
				return err
			}
			return writeJSON(cmd, out)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "inspect [path]",
		Short: "Summarize a snapshot file (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				path = latestSnapshot(filepath.Join(opts.sessionDir(), "snapshots"))
			}
			if path == "" {
				return fmt.Errorf("no snapshot found under %s", opts.sessionDir())
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return err
			}
			sum := summarize(snap)
			if opts.asJSON {
				return writeJSON(cmd, sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: v%d world=%s session=%s tick=%d seed=%d fields=%d chunks=%d claims=%d completed=%d cancelled=%d\n",
				filepath.Base(path), snap.Header.Version, snap.Header.WorldID, snap.Header.SessionID, snap.Header.Tick, snap.Seed,
				len(snap.Fields), sum.Chunks, sum.Claims, snap.Stats.Completed, snap.Stats.Cancelled)
			rows := make([][]string, 0, len(sum.Stations))
			for _, st := range sum.Stations {
				rows = append(rows, []string{st.ID, yesNo(st.Enabled), strconv.Itoa(st.Claims), strconv.Itoa(st.Active), strconv.Itoa(st.Tracked), st.LastReason})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Station", "Enabled", "Claims", "Active", "Tracked", "Last reason"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	})
	root.AddCommand(newSnapshotListCommand(opts))
	return root
}

type snapshotSummary struct {
	Tick     uint64           `json:"tick"`
	Chunks   int              `json:"chunks"`
	Claims   int              `json:"claims"`
	Mined    int              `json:"mined"`
	Stations []stationSummary `json:"stations"`
}

type stationSummary struct {
	ID         string `json:"id"`
	Enabled    bool   `json:"enabled"`
	Claims     int    `json:"claims"`
	Active     int    `json:"active"`
	Tracked    int    `json:"tracked"`
	LastReason string `json:"last_reason,omitempty"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	sum := snapshotSummary{Tick: snap.Header.Tick, Claims: len(snap.Claims)}
	for _, f := range snap.Fields {
		sum.Chunks += len(f.Chunks)
	}
	for _, sc := range snap.Scanners {
		sum.Mined += len(sc.Mined)
	}
	claims := map[string]int{}
	for _, c := range snap.Claims {
		claims[c.Station]++
	}
	for _, st := range snap.Stations {
		s := stationSummary{ID: st.ID, Enabled: st.Enabled, Claims: claims[st.ID], Active: len(st.Active), LastReason: st.LastReason}
		for _, t := range st.Active {
			if t.Tracked {
				s.Tracked++
			}
		}
		sum.Stations = append(sum.Stations, s)
	}
	sort.Slice(sum.Stations, func(i, j int) bool { return sum.Stations[i].ID < sum.Stations[j].ID })
	return sum
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			best, bestTick = filepath.Join(dir, name), tick
		}
	}
	return best
}
