package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/scoutbot/internal/config"
)

// DefaultCommandTimeout bounds a hook command when its entry sets none.
const DefaultCommandTimeout = 10 * time.Second

// killGrace is how long Run waits for the output pipes after the command
// was killed; children that inherited them are not waited for.
const killGrace = time.Second

// CommandHandler returns a handler that runs entry.Command through "sh -c"
// with the JSON payload on stdin.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(cmd.Environ(), "SCOUTBOT_HOOK_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		killProcessGroup(cmd)
		cmd.WaitDelay = killGrace

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("hook command %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook command %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterConfigured attaches the command hooks from cfg to m.
func RegisterConfigured(m *Manager, cfg config.HooksConfig) int {
	n := 0
	register := func(event string, entries []config.HookEntry) {
		for i, e := range entries {
			if strings.TrimSpace(e.Command) == "" {
				continue
			}
			m.On(event, fmt.Sprintf("config.%s.%d", event, i), CommandHandler(e))
			n++
		}
	}
	register(EventSessionStart, cfg.SessionStart)
	register(EventSessionEnd, cfg.SessionEnd)
	register(EventPipelineDone, cfg.PipelineDone)
	register(EventReportDelivered, cfg.ReportDelivered)
	return n
}
