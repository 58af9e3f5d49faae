package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/gateway"
	"github.com/soyeahso/colloquy/internal/version"
	"github.com/spf13/cobra"
)

type remoteFlags struct {
	url      string
	token    string
	password string
	language string
}

func newDiscussCmd() *cobra.Command {
	var rf remoteFlags

	cmd := &cobra.Command{
		Use:   "discuss",
		Short: "Talk to a running gateway",
	}

	cmd.PersistentFlags().StringVar(&rf.url, "url", "", "gateway WebSocket URL (default from config)")
	cmd.PersistentFlags().StringVar(&rf.token, "token", "", "gateway token (default from config)")
	cmd.PersistentFlags().StringVar(&rf.password, "password", "", "gateway password (default from config)")
	cmd.PersistentFlags().StringVar(&rf.language, "language", "", "language to be addressed in")

	cmd.AddCommand(newDiscussNewCmd(&rf))
	cmd.AddCommand(newDiscussLoadCmd(&rf))
	return cmd
}

func newDiscussNewCmd(rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Start a discussion with the active personality",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result gateway.NewDiscussionResult
			err := withRemote(cmd, rf, func(ctx context.Context, conn *gateway.Conn) error {
				params := gateway.NewDiscussionParams{Title: strings.Join(args, " ")}
				return conn.Call(ctx, "new_discussion", params, &result, printEvent(cmd.ErrOrStderr()))
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newDiscussLoadCmd(rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load [id]",
		Short: "Load a discussion; without an id the last one is loaded",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params gateway.LoadDiscussionParams
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid discussion id %q", args[0])
				}
				params.ID = &id
			}

			var messages json.RawMessage
			err := withRemote(cmd, rf, func(ctx context.Context, conn *gateway.Conn) error {
				return conn.Call(ctx, "load_discussion", params, nil, func(f gateway.Frame) {
					if f.Event == "discussion" {
						messages = f.Payload
						return
					}
					printEvent(cmd.ErrOrStderr())(f)
				})
			})
			if err != nil {
				return err
			}
			if messages == nil {
				messages = json.RawMessage("[]")
			}
			return printJSON(cmd.OutOrStdout(), messages)
		},
	}
}

// withRemote dials the gateway described by rf and the config file.
func withRemote(cmd *cobra.Command, rf *remoteFlags, fn func(context.Context, *gateway.Conn) error) error {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}

	url := rf.url
	if url == "" {
		url = gatewayURL(cfg.Gateway)
	}
	auth := &gateway.ConnectAuth{Token: rf.token, Password: rf.password}
	if auth.Token == "" && auth.Password == "" {
		resolved := gateway.ResolveAuth(cfg.Gateway.Auth)
		auth.Token, auth.Password = resolved.Token, resolved.Password
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := gateway.Dial(ctx, url, gateway.ConnectParams{
		Client: gateway.ClientInfo{
			ID:       "colloquy-cli",
			Version:  version.Version,
			Platform: "cli",
			Mode:     "cli",
		},
		Auth:     auth,
		Language: rf.language,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, conn)
}

// gatewayURL is the loopback WebSocket URL of a locally configured gateway.
func gatewayURL(cfg config.GatewayConfig) string {
	scheme := "ws"
	if cfg.TLS.Enabled {
		scheme = "wss"
	}
	host := "127.0.0.1"
	if cfg.Bind == "custom" && cfg.CustomBindHost != "" {
		host = cfg.CustomBindHost
	}
	port := cfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return fmt.Sprintf("%s://%s:%d/ws", scheme, host, port)
}

func printEvent(w io.Writer) func(gateway.Frame) {
	return func(f gateway.Frame) {
		if len(f.Payload) == 0 {
			fmt.Fprintf(w, "<- %s\n", f.Event)
			return
		}
		fmt.Fprintf(w, "<- %s %s\n", f.Event, f.Payload)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
