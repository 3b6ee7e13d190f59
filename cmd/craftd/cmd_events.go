package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/craftapp/craftd/internal/adapter/jsonl"
)

var tailLines int

func init() {
	eventsTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 20, "number of records to print")
	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the workspace event history",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the last records of the history log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tailLines < 1 {
			return fmt.Errorf("--lines must be at least 1")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := workspacePath(cfg.Files.History)

		lines, err := jsonl.ReadTail(path, tailLines)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Fprintf(os.Stderr, "no history at %s\n", path)
			return nil
		}
		for _, l := range lines {
			fmt.Fprintln(os.Stdout, l)
		}
		return nil
	},
}
