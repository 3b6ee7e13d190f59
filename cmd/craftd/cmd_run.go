package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/craftapp/craftd/internal/adapter/otel"
	"github.com/craftapp/craftd/internal/domain/event"
	"github.com/craftapp/craftd/internal/domain/prompt"
	"github.com/craftapp/craftd/internal/service"
)

const (
	maxHostLine       = 1 << 20
	rulesPollInterval = 2 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var (
	runSession    string
	runWatchRules bool
)

func init() {
	runCmd.Flags().StringVar(&runSession, "session", "", "session id for prompts not tied to a session")
	runCmd.Flags().BoolVar(&runWatchRules, "watch-rules", true, "reload rules when the rule file changes on disk")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the automation engine for a workspace",
	Long: `Run hosts one workspace engine: the minute scheduler starts, every event
is appended to the history log, and pending prompts are written to stdout
as JSON lines. The host process drives it by writing JSON commands to
stdin, one per line:

  {"op":"metadata","sessionId":"s1","metadata":{"labels":["urgent"]}}
  {"op":"init","sessionId":"s1","metadata":{"session_status":"running"}}
  {"op":"remove","sessionId":"s1"}
  {"op":"emit","type":"LabelAdd","payload":{"session_id":"s1","label":"urgent"}}
  {"op":"reload"}

Closing stdin or sending SIGINT or SIGTERM shuts the engine down.`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closer := setupLogging(cfg)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := otel.Init(ctx, otel.Config{
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
		Service:  cfg.Logging.Service,
	})
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}
	if shutdown != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	out := &stdoutStream{enc: json.NewEncoder(os.Stdout)}

	sys, err := service.NewAutomationSystem(service.SystemOptions{
		WorkspaceID:   workspaceID,
		WorkspaceRoot: workspaceDir,
		SessionID:     runSession,
		Config:        cfg,
		Callbacks: service.Callbacks{
			OnPromptsReady: func(batch []prompt.PendingPrompt) {
				out.send(hostOutput{Type: "prompts", Prompts: batch})
			},
			OnError: func(t event.Type, err error) {
				slog.Warn("prompt generation failed", "event", t, "error", err)
			},
			OnEventLost: func(ids []string, err error) {
				out.send(hostOutput{Type: "lost", EventIDs: ids, Error: err.Error()})
			},
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sys.Dispose(dctx); err != nil {
			slog.Warn("engine dispose failed", "error", err)
		}
	}()

	slog.Info("engine running", "workspace", workspaceID, "log", sys.LogPath())

	lines := make(chan string)
	go readStdin(lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Stdin closing ends the run; stop cancels the watcher too.
		defer stop()
		return dispatchHostLines(gctx, sys, out, lines)
	})
	if runWatchRules {
		g.Go(func() error {
			return watchRules(gctx, sys, out, workspacePath(cfg.Files.Rules))
		})
	}
	return g.Wait()
}

// hostCommand is one JSON line written by the host process.
type hostCommand struct {
	Op        string                  `json:"op,omitempty"`
	SessionID string                  `json:"sessionId,omitempty"`
	Metadata  *event.MetadataSnapshot `json:"metadata,omitempty"`
	Type      string                  `json:"type,omitempty"`
	Payload   *event.Payload          `json:"payload,omitempty"`
}

// hostOutput is one JSON line written back to the host. Type discriminates:
// "prompts" carries a pending-prompt batch, "reload" a rule reload status,
// "lost" the ids of history records that could not be persisted.
type hostOutput struct {
	Type     string                 `json:"type"`
	Prompts  []prompt.PendingPrompt `json:"prompts,omitempty"`
	Reload   *service.ReloadStatus  `json:"reload,omitempty"`
	EventIDs []string               `json:"eventIds,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// stdoutStream serializes host output lines. Prompt batches arrive from
// bus dispatch goroutines concurrently with command replies.
type stdoutStream struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (s *stdoutStream) send(v hostOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		slog.Warn("write host output failed", "error", err)
	}
}

// readStdin feeds host lines into ch and closes it when stdin does. A read
// blocked at shutdown is abandoned with the process rather than cancelled.
func readStdin(ch chan<- string) {
	defer close(ch)
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), maxHostLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ch <- line
	}
	if err := sc.Err(); err != nil {
		slog.Warn("read host input failed", "error", err)
	}
}

func dispatchHostLines(ctx context.Context, sys *service.AutomationSystem, out *stdoutStream, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				slog.Info("host input closed")
				return nil
			}
			handleHostLine(ctx, sys, out, line)
		}
	}
}

// handleHostLine runs one host command. Bad input is logged and dropped;
// the engine never stops over a malformed line.
func handleHostLine(ctx context.Context, sys *service.AutomationSystem, out *stdoutStream, line string) {
	var cmd hostCommand
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		slog.Warn("malformed host command", "error", err)
		return
	}

	op := cmd.Op
	if op == "" && cmd.Metadata != nil {
		op = "metadata"
	}

	switch op {
	case "metadata":
		if cmd.SessionID == "" || cmd.Metadata == nil {
			slog.Warn("metadata command missing sessionId or metadata")
			return
		}
		emitted := sys.UpdateSessionMetadata(ctx, cmd.SessionID, *cmd.Metadata)
		slog.Debug("session metadata updated", "session", cmd.SessionID, "events", len(emitted))
	case "init":
		if cmd.SessionID == "" || cmd.Metadata == nil {
			slog.Warn("init command missing sessionId or metadata")
			return
		}
		sys.SetInitialSessionMetadata(cmd.SessionID, *cmd.Metadata)
	case "remove":
		if cmd.SessionID == "" {
			slog.Warn("remove command missing sessionId")
			return
		}
		sys.RemoveSessionMetadata(cmd.SessionID)
	case "emit":
		t, deprecated, ok := event.Canonical(cmd.Type)
		if !ok {
			slog.Warn("emit command with unknown event type", "type", cmd.Type)
			return
		}
		if deprecated {
			slog.Warn("emit command uses deprecated event name", "type", cmd.Type, "canonical", t)
		}
		var p event.Payload
		if cmd.Payload != nil {
			p = *cmd.Payload
		}
		if cmd.SessionID != "" && p.SessionID == "" {
			p.SessionID = cmd.SessionID
		}
		sys.Emit(ctx, t, p)
	case "reload":
		st := sys.ReloadRules()
		out.send(hostOutput{Type: "reload", Reload: &st})
	default:
		slog.Warn("unknown host command", "op", op)
	}
}

// watchRules polls the rule file's mtime and reloads on change. The id
// backfill at startup already rewrote the file, so the baseline is taken
// after construction.
func watchRules(ctx context.Context, sys *service.AutomationSystem, out *stdoutStream, path string) error {
	last := fileModTime(path)
	ticker := time.NewTicker(rulesPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mod := fileModTime(path)
			if mod.Equal(last) {
				continue
			}
			last = mod
			st := sys.ReloadRules()
			out.send(hostOutput{Type: "reload", Reload: &st})
		}
	}
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
