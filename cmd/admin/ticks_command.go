package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	persistlog "nanitecraft.ai/internal/persistence/log"
	"nanitecraft.ai/internal/sim/session"
)

// tickScan summarizes a run of tick log entries. Gaps are ranges of ticks that
// never reached the log, e.g. across a crash and snapshot resume.
type tickScan struct {
	First   uint64            `json:"first"`
	Last    uint64            `json:"last"`
	Entries int               `json:"entries"`
	Gaps    [][2]uint64       `json:"gaps,omitempty"`
	Events  map[string]int    `json:"events"`
	Outcome map[string]int    `json:"outcomes"`
	Digests map[uint64]string `json:"-"`
}

func scanTicks(dir string, from, to uint64) (tickScan, error) {
	scan := tickScan{Events: map[string]int{}, Outcome: map[string]int{}, Digests: map[uint64]string{}}
	segs, err := persistlog.Segments(dir, "ticks")
	if err != nil {
		return scan, err
	}
	var prev uint64
	seen := false
	for _, p := range segs {
		err := persistlog.ReadJSONL(p, func(e session.TickLogEntry) error {
			if e.Tick < from || (to > 0 && e.Tick > to) {
				return nil
			}
			if !seen {
				scan.First = e.Tick
			} else if e.Tick > prev+1 {
				scan.Gaps = append(scan.Gaps, [2]uint64{prev + 1, e.Tick - 1})
			}
			seen = true
			prev = e.Tick
			scan.Last = e.Tick
			scan.Entries++
			scan.Digests[e.Tick] = e.Digest
			for _, ev := range e.Events {
				scan.Events[ev.Kind]++
				if ev.Outcome != "" {
					scan.Outcome[ev.Outcome]++
				}
			}
			return nil
		})
		if err != nil {
			return scan, err
		}
	}
	return scan, nil
}

func newTicksCommand(opts *options) *cobra.Command {
	var from, to uint64
	cmd := &cobra.Command{
		Use:   "ticks",
		Short: "Scan the tick log for coverage gaps and event totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			scan, err := scanTicks(persistlog.TickDir(opts.sessionDir()), from, to)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd, scan)
			}
			out := cmd.OutOrStdout()
			if scan.Entries == 0 {
				fmt.Fprintln(out, "no tick entries")
				return nil
			}
			fmt.Fprintf(out, "ticks %d..%d entries=%d gaps=%d\n", scan.First, scan.Last, scan.Entries, len(scan.Gaps))
			for _, g := range scan.Gaps {
				fmt.Fprintf(out, "  missing %d..%d\n", g[0], g[1])
			}
			var rows [][]string
			for _, k := range sortedKeys(scan.Events) {
				rows = append(rows, []string{"event", k, strconv.Itoa(scan.Events[k])})
			}
			for _, k := range sortedKeys(scan.Outcome) {
				rows = append(rows, []string{"outcome", k, strconv.Itoa(scan.Outcome[k])})
			}
			fmt.Fprintln(out, renderTable([]string{"Group", "Name", "Count"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first tick to include")
	cmd.Flags().Uint64Var(&to, "to", 0, "last tick to include (0 = end of log)")
	return cmd
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
