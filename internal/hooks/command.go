package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/logging"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHandler returns a Handler that runs entry.Command through "sh -c"
// with the JSON payload on stdin. The process environment gets
// COLLOQUY_EVENT set to the event name.
func CommandHandler(entry config.HookEntry, log *logging.Logger) Handler {
	timeout := defaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding hook payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(cmd.Environ(), "COLLOQUY_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		start := time.Now()
		out, err := cmd.Output()
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return fmt.Errorf("hook %q exited %d: %s", entry.Command, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
			}
			return fmt.Errorf("hook %q: %w", entry.Command, err)
		}

		log.Debug().
			Str("event", p.Event).
			Str("command", entry.Command).
			Dur("took", time.Since(start)).
			Int("stdoutBytes", len(out)).
			Msg("hook command finished")
		return nil
	}
}

// RegisterConfig registers a command handler for every configured hook entry.
// It returns the number of handlers registered.
func RegisterConfig(m *Manager, cfg config.HooksConfig) int {
	byEvent := map[string][]config.HookEntry{
		EventDiscussionCreated:   cfg.DiscussionCreated,
		EventDiscussionLoaded:    cfg.DiscussionLoaded,
		EventMessageAdded:        cfg.MessageAdded,
		EventLanguagePackCreated: cfg.LanguagePackCreated,
		EventGatewayStart:        cfg.GatewayStart,
		EventGatewayStop:         cfg.GatewayStop,
	}

	n := 0
	for _, event := range AllEvents {
		for i, entry := range byEvent[event] {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			m.On(event, fmt.Sprintf("config.%s.%d", event, i), CommandHandler(entry, m.log))
			n++
		}
	}
	return n
}
