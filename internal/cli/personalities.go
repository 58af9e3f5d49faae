package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/persona"
	"github.com/spf13/cobra"
)

func newPersonalitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "personalities",
		Aliases: []string{"personality"},
		Short:   "List and select mounted personalities",
	}

	cmd.AddCommand(newPersonalitiesListCmd())
	cmd.AddCommand(newPersonalitiesSelectCmd())
	return cmd
}

func newPersonalitiesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mounted personalities; the active one is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if len(cfg.Personalities.List) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no personalities mounted)")
				return nil
			}

			root := paths.PersonalitiesDir(cfg.Personalities)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tINDEX\tREF\tNAME\tLANGUAGE")
			for i, ref := range cfg.Personalities.List {
				mark := ""
				if i == cfg.Personalities.Active {
					mark = "*"
				}
				p, err := persona.Load(root, ref)
				if err != nil {
					fmt.Fprintf(w, "%s\t%d\t%s\t(error: %v)\t\n", mark, i, ref, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", mark, i, ref, p.Name, p.Language)
			}
			return w.Flush()
		},
	}
}

func newPersonalitiesSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <index|ref>",
		Short: "Make a mounted personality the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			index, err := personalityIndex(cfg.Personalities.List, args[0])
			if err != nil {
				return err
			}
			p, err := persona.Load(paths.PersonalitiesDir(cfg.Personalities), cfg.Personalities.List[index])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			if err := config.SetValueAtPath(raw, []string{"personalities", "active"}, index); err != nil {
				return err
			}
			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%s)\n", p.Ref, p.Name)
			return nil
		},
	}
}

// personalityIndex resolves arg as a list index or a mounted reference.
func personalityIndex(list []string, arg string) (int, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 0 || n >= len(list) {
			return 0, fmt.Errorf("personality index %d out of range (0..%d)", n, len(list)-1)
		}
		return n, nil
	}
	for i, ref := range list {
		if ref == arg {
			return i, nil
		}
	}
	return 0, fmt.Errorf("personality %q is not mounted", arg)
}
