package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/session"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// call sends one admin request and decodes a 2xx JSON reply into out. Error
// replies are decoded as protocol.ErrorResponse.
func call(opts *options, method, path string, body any, out any) error {
	u := strings.TrimRight(strings.TrimSpace(opts.baseURL), "/") + path
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e protocol.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Code != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, e.Code, e.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func newStateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show live session metrics and station status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var state struct {
				WorldID   string          `json:"world_id"`
				SessionID string          `json:"session_id"`
				Tick      uint64          `json:"tick"`
				Metrics   session.Metrics `json:"metrics"`
			}
			if err := call(opts, http.MethodGet, "/admin/v1/state", nil, &state); err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd, state)
			}
			m := state.Metrics
			fmt.Fprintf(cmd.OutOrStdout(), "world=%s session=%s tick=%d claims=%d active=%d completed=%d cancelled=%d step=%.2fms\n",
				state.WorldID, state.SessionID, state.Tick, m.Claims, m.ActiveTargets, m.Completed, m.Cancelled, m.StepMS)
			fmt.Fprintln(cmd.OutOrStdout(), renderStations(m.Stations))
			return nil
		},
	}
}

func renderStations(stations []session.StationStatus) string {
	rows := make([][]string, 0, len(stations))
	for _, st := range stations {
		limit := strconv.Itoa(st.MaxTargets)
		if st.UserTargetCap > 0 {
			limit += fmt.Sprintf(" (cap %d)", st.UserTargetCap)
		}
		rows = append(rows, []string{
			st.ID, st.Owner, yesNo(st.Enabled),
			fmt.Sprintf("%d/%s", st.Active, limit),
			strconv.Itoa(st.Candidates), strconv.Itoa(st.PotentialTargets),
			fmt.Sprintf("%.2f", st.CargoFree), strconv.Itoa(st.Links), st.LastReason,
		})
	}
	return renderTable(
		[]string{"Station", "Owner", "Enabled", "Active", "Candidates", "Potential", "Cargo free m3", "Links", "Last reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func newEventsCommand(opts *options) *cobra.Command {
	var since uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Page through recent target events",
		RunE: func(cmd *cobra.Command, args []string) error {
			var batch protocol.EventBatchMsg
			path := fmt.Sprintf("/admin/v1/events?since=%d&limit=%d", since, limit)
			if err := call(opts, http.MethodGet, path, nil, &batch); err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd, batch)
			}
			rows := make([][]string, 0, len(batch.Events))
			for _, it := range batch.Events {
				ev := it.Event
				rows = append(rows, []string{
					strconv.FormatUint(it.Cursor, 10), strconv.FormatUint(ev.Tick, 10), ev.Kind, ev.Station,
					fmt.Sprintf("%s%v", ev.Field, ev.Pos), ev.Outcome, ev.Item, formatAmount(ev.Amount),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Cursor", "Tick", "Kind", "Station", "Cell", "Outcome", "Item", "Amount"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "next cursor: %d\n", batch.NextCursor)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "return events after this cursor")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to return")
	return cmd
}

func newCommandCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "cmd",
		Short: "Send an admin command to the running session",
	}
	send := func(cmd *cobra.Command, req protocol.AdminCommandRequest) error {
		var out map[string]any
		if err := call(opts, http.MethodPost, "/admin/v1/commands", req, &out); err != nil {
			return err
		}
		return writeJSON(cmd, out)
	}

	root.AddCommand(&cobra.Command{
		Use:   "enable <station>",
		Short: "Enable a station",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on := true
			return send(cmd, protocol.AdminCommandRequest{Command: protocol.CmdSetEnabled, Station: args[0], Enabled: &on})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "disable <station>",
		Short: "Disable a station; its targets stay claimed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			off := false
			return send(cmd, protocol.AdminCommandRequest{Command: protocol.CmdSetEnabled, Station: args[0], Enabled: &off})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "cap <station> <n>",
		Short: "Set the user target cap (0 clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("cap: %w", err)
			}
			return send(cmd, protocol.AdminCommandRequest{Command: protocol.CmdSetTargetCap, Station: args[0], Cap: &n})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "reset-field <field>",
		Short: "Archive a snapshot, then regenerate a field from its seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, protocol.AdminCommandRequest{Command: protocol.CmdResetField, Field: args[0]})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "remove-field <field>",
		Short: "Take a field out of the session; its targets cancel with ENTITY_GONE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, protocol.AdminCommandRequest{Command: protocol.CmdRemoveField, Field: args[0]})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "remove-cargo <cargo>",
		Short: "Take a cargo container out of service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, protocol.AdminCommandRequest{Command: protocol.CmdRemoveCargo, Cargo: args[0]})
		},
	})
	return root
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
