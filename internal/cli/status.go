package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/llm"
	"github.com/soyeahso/colloquy/internal/persona"
	"github.com/soyeahso/colloquy/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show colloquy status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Colloquy %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:        %s\n", paths.Config)
			fmt.Fprintf(out, "Data:          %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:          %s\n", paths.Logs)
			fmt.Fprintf(out, "Language packs: %s\n", paths.LanguagePacks)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(out, "Config:  not found (using defaults)")
				} else {
					fmt.Fprintf(out, "Config:  error: %v\n", err)
					return nil
				}
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)

			storePath := "-"
			if cfg.Store.Driver != "memory" {
				storePath = paths.DatabasePath(cfg.Store)
			}
			fmt.Fprintf(out, "Store:    driver=%s path=%s\n", cfg.Store.Driver, storePath)

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			if providers := registry.List(); len(providers) > 0 {
				fmt.Fprintf(out, "LLM:      %s model=%s endpoint=%s\n",
					strings.Join(providers, ", "), cfg.LLM.Model, cfg.LLM.Endpoint)
			} else {
				fmt.Fprintf(out, "LLM:      (none, binding=%q)\n", cfg.LLM.Binding)
			}

			language := cfg.CurrentLanguage
			if language == "" {
				language = "(personality default)"
			}
			fmt.Fprintf(out, "Language: %s\n", language)

			selector := persona.NewSelector(paths.PersonalitiesDir(cfg.Personalities), cfg.Personalities, log)
			if p, ok := selector.Active(); ok {
				fmt.Fprintf(out, "Persona:  %s (%s, %s)\n", p.Ref, p.Name, p.Language)
			} else {
				fmt.Fprintf(out, "Persona:  (none selected, %d configured)\n", len(cfg.Personalities.List))
			}

			if cfg.Audio.Enabled {
				fmt.Fprintf(out, "Audio:    player=%s\n", cfg.Audio.Player)
			} else {
				fmt.Fprintln(out, "Audio:    disabled")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
