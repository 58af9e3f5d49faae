package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/soyeahso/colloquy/internal/store"
	"github.com/spf13/cobra"
)

func newDiscussionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "discussions",
		Aliases: []string{"discussion"},
		Short:   "Inspect stored discussions",
	}

	cmd.AddCommand(newDiscussionsListCmd())
	cmd.AddCommand(newDiscussionsShowCmd())
	cmd.AddCommand(newDiscussionsSearchCmd())
	cmd.AddCommand(newDiscussionsRenameCmd())
	cmd.AddCommand(newDiscussionsDeleteCmd())
	return cmd
}

// withDiscussionStore opens the configured SQLite database for the duration of fn.
func withDiscussionStore(fn func(*store.SQLiteDiscussionStore) error) error {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "memory" {
		return errors.New("discussions are not persisted with the memory store driver")
	}

	db, err := store.Open(paths.DatabasePath(cfg.Store), log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store.NewSQLiteDiscussionStore(db))
}

func newDiscussionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discussions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDiscussionStore(func(st *store.SQLiteDiscussionStore) error {
				list, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "(no discussions)")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tCREATED")
				for _, d := range list {
					fmt.Fprintf(w, "%d\t%s\t%s\n", d.ID, d.Title, d.CreatedAt.Local().Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}
}

func newDiscussionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a discussion's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDiscussionID(args[0])
			if err != nil {
				return err
			}

			return withDiscussionStore(func(st *store.SQLiteDiscussionStore) error {
				ctx := cmd.Context()
				d, err := st.Get(ctx, id)
				if err != nil {
					return err
				}
				msgs, err := st.Messages(ctx, id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "#%d %s\n\n", d.ID, d.Title)
				for _, m := range msgs {
					fmt.Fprintf(out, "[%s] %s\n%s\n\n", senderLabel(m), m.CreatedAt.Local().Format(time.DateTime), m.Content)
				}
				return nil
			})
		},
	}
}

func parseDiscussionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid discussion id %q", arg)
	}
	return id, nil
}

func senderLabel(m domain.Message) string {
	if m.SenderType == domain.SenderAI && m.Personality != "" {
		return m.Sender + " (" + m.Personality + ")"
	}
	return m.Sender
}

func newDiscussionsSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over message contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withDiscussionStore(func(st *store.SQLiteDiscussionStore) error {
				hits, err := st.Search(cmd.Context(), query, limit)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "(no matches)")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DISCUSSION\tMESSAGE\tTITLE\tSNIPPET")
				for _, h := range hits {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", h.DiscussionID, h.MessageID, h.Title, h.Snippet)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of matches")
	return cmd
}

func newDiscussionsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change a discussion's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDiscussionID(args[0])
			if err != nil {
				return err
			}
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return errors.New("title must not be empty")
			}

			return withDiscussionStore(func(st *store.SQLiteDiscussionStore) error {
				if err := st.Rename(cmd.Context(), id, title); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed discussion %d to %q\n", id, title)
				return nil
			})
		},
	}
}

func newDiscussionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a discussion and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDiscussionID(args[0])
			if err != nil {
				return err
			}

			return withDiscussionStore(func(st *store.SQLiteDiscussionStore) error {
				if err := st.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted discussion %d\n", id)
				return nil
			})
		},
	}
}
