package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"
)

type options struct {
	dataDir string
	worldID string
	baseURL string
	asJSON  bool
}

func (o *options) sessionDir() string {
	return filepath.Join(o.dataDir, "worlds", o.worldID)
}

func (o *options) indexPath() string {
	return filepath.Join(o.sessionDir(), "index", "session.sqlite")
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Inspect and operate a nanite mining session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data", "./data", "runtime data directory")
	root.PersistentFlags().StringVar(&opts.worldID, "world", "world_1", "world id")
	root.PersistentFlags().StringVar(&opts.baseURL, "url", "http://127.0.0.1:8080", "server base url")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of tables")

	root.AddCommand(newStateCommand(opts))
	root.AddCommand(newEventsCommand(opts))
	root.AddCommand(newCommandCommand(opts))
	root.AddCommand(newSnapshotCommand(opts))
	root.AddCommand(newOutcomesCommand(opts))
	root.AddCommand(newStationsCommand(opts))
	root.AddCommand(newAuditsCommand(opts))
	root.AddCommand(newTicksCommand(opts))
	return root
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
