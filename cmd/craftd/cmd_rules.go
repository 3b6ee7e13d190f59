package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/craftapp/craftd/internal/domain/event"
	"github.com/craftapp/craftd/internal/domain/prompt"
	"github.com/craftapp/craftd/internal/domain/rule"
)

var (
	testEvent   string
	testValue   string
	testSession string
	testAt      string
)

func init() {
	rulesTestCmd.Flags().StringVar(&testEvent, "event", "", "event type to simulate (e.g. LabelAdd)")
	rulesTestCmd.Flags().StringVar(&testValue, "value", "", "match value for the event (label, mode, status, tool name)")
	rulesTestCmd.Flags().StringVar(&testSession, "session", "", "session id carried by the simulated event")
	rulesTestCmd.Flags().StringVar(&testAt, "at", "", "event time as RFC3339 (default now; cron rules match against this)")
	_ = rulesTestCmd.MarkFlagRequired("event")

	rulesCmd.AddCommand(rulesValidateCmd, rulesIDsCmd, rulesTestCmd)
	rootCmd.AddCommand(rulesCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and maintain the workspace rule file",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the rule file and report matcher counts and warnings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, res, err := loadRuleFile()
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EVENT\tMATCHERS")
		for _, t := range res.Config.EventTypes() {
			fmt.Fprintf(tw, "%s\t%d\n", t, len(res.Config.MatchersFor(t)))
		}
		tw.Flush()
		fmt.Fprintf(os.Stdout, "\n%d automation(s) in %s\n", res.Config.MatcherCount(), path)
		return nil
	},
}

var rulesIDsCmd = &cobra.Command{
	Use:   "ids",
	Short: "Assign ids to matchers that are missing one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, res, err := loadRuleFile()
		if err != nil {
			return err
		}
		if !rule.EnsureIDs(res.Config) {
			fmt.Fprintf(os.Stdout, "All %d matcher(s) in %s already have ids.\n", res.Config.MatcherCount(), path)
			return nil
		}
		if err := rule.Save(res.Config, path); err != nil {
			return fmt.Errorf("save rule file: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Assigned ids written to %s.\n", path)
		return nil
	},
}

var rulesTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Dry-run the matching engine against a synthetic event",
	Long: `Test simulates one event against the workspace rule file and prints the
pending prompts that would be generated, without emitting anything. Cron
rules are evaluated against --at, so scheduled automations can be checked
for any minute.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, res, err := loadRuleFile()
		if err != nil {
			return err
		}

		t, deprecated, ok := event.Canonical(testEvent)
		if !ok {
			return fmt.Errorf("unknown event type %q", testEvent)
		}
		if deprecated {
			fmt.Fprintf(os.Stderr, "warning: %s is deprecated, matching as %s\n", testEvent, t)
		}

		at := time.Now()
		if testAt != "" {
			at, err = time.Parse(time.RFC3339, testAt)
			if err != nil {
				return fmt.Errorf("parse --at: %w", err)
			}
		}

		p := syntheticPayload(t, testValue, testSession).WithDefaults(workspaceID, at)
		pending, fired, err := dryRun(res.Config, t, p, at)
		if err != nil {
			return err
		}

		matchers := res.Config.MatchersFor(t)
		fmt.Fprintf(os.Stderr, "%d of %d matcher(s) fired for %s\n", fired, len(matchers), t)
		if pending == nil {
			pending = []prompt.PendingPrompt{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pending)
	},
}

func loadRuleFile() (string, *rule.LoadResult, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, err
	}
	path := workspacePath(cfg.Files.Rules)
	res, err := rule.LoadFile(path)
	if err != nil {
		return "", nil, err
	}
	return path, res, nil
}

// syntheticPayload places the match value in the field the event type is
// matched on, mirroring MatchValue's extraction.
func syntheticPayload(t event.Type, value, session string) event.Payload {
	p := event.Payload{SessionID: session}
	switch t {
	case event.TypeLabelAdd, event.TypeLabelRemove:
		p.Label = value
	case event.TypePermissionModeChange:
		p.NewMode = value
	case event.TypeFlagChange:
		if b, err := strconv.ParseBool(value); err == nil {
			p.IsFlagged = event.Bool(b)
		}
	case event.TypeSessionStatusChange:
		p.NewStatus = value
	case event.TypePreToolUse, event.TypePostToolUse, event.TypePermissionRequest:
		p.ToolName = value
	}
	return p
}

// dryRun evaluates matchers and expands prompt actions the way the live
// pipeline does, but against a synthetic payload with no session metadata.
func dryRun(cfg *rule.Config, t event.Type, p event.Payload, at time.Time) ([]prompt.PendingPrompt, int, error) {
	matchers := cfg.MatchersFor(t)
	if len(matchers) == 0 {
		return nil, 0, nil
	}
	value := rule.MatchValue(t, p)

	var env map[string]string
	var pending []prompt.PendingPrompt
	fired := 0
	for i := range matchers {
		m := &matchers[i]
		if !rule.Matches(m, t, value, at) {
			continue
		}
		fired++
		actions := m.PromptActions()
		if len(actions) == 0 {
			continue
		}
		if env == nil {
			var err error
			env, err = prompt.Env(t, p, nil)
			if err != nil {
				return nil, fired, fmt.Errorf("build prompt environment: %w", err)
			}
		}

		var labels []string
		if len(m.Labels) > 0 {
			labels = make([]string, len(m.Labels))
			for j, l := range m.Labels {
				labels[j] = prompt.Expand(l, env)
			}
		}
		for _, action := range actions {
			text := prompt.Expand(action.Prompt, env)
			mentions := prompt.Mentions(text)
			if mentions == nil {
				mentions = []string{}
			}
			pending = append(pending, prompt.PendingPrompt{
				SessionID:      p.SessionID,
				MatcherID:      m.ID,
				Prompt:         text,
				Mentions:       mentions,
				Labels:         labels,
				PermissionMode: m.PermissionMode,
				LLMConnection:  action.LLMConnection,
				Model:          action.Model,
			})
		}
	}
	return pending, fired, nil
}
