// Command leadctl inspects registration leads recorded by the chat server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/health"
	"github.com/Wainainajnr/ngongtownbot/internal/lead"
	"github.com/Wainainajnr/ngongtownbot/internal/store"
)

const defaultDBPath = "./data/leads.db"

type options struct {
	dbPath string
	json   bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Inspect registration leads",
		Long:          "leadctl reads the lead store written by the chat server and reprints escalation messages and links.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	dbDefault := os.Getenv("DB_PATH")
	if dbDefault == "" {
		dbDefault = defaultDBPath
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", dbDefault, "path to the lead database (default from DB_PATH)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of text")

	root.AddCommand(newListCmd(opts), newShowCmd(opts), newLinkCmd(opts), newHealthCmd())
	return root
}

func newListCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent leads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(opts, func(repo store.LeadRepository) error {
				leads, err := repo.ListLeads(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list leads: %w", err)
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), leads)
				}
				if len(leads) == 0 {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "No leads recorded.")
					return err
				}
				return renderLeads(cmd.OutOrStdout(), leads)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of leads")
	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the escalation message for a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLead(cmd.Context(), opts, args[0], func(l *domain.StoredLead) error {
				if opts.json {
					return printJSON(cmd.OutOrStdout(), l)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), lead.FormatMessage(l.Lead, l.CatalogCourse, l.SubmittedAt))
				return err
			})
		},
	}
}

func newLinkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "link <id>",
		Short: "Print the WhatsApp escalation link for a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLead(cmd.Context(), opts, args[0], func(l *domain.StoredLead) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), l.EscalationURL)
				return err
			})
		},
	}
}

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the server's gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := health.Probe(ctx, addr, health.ServiceName)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "health server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}

func withStore(opts *options, fn func(store.LeadRepository) error) error {
	if _, err := os.Stat(opts.dbPath); err != nil {
		return fmt.Errorf("open lead store %s: %w", opts.dbPath, err)
	}
	repo, err := store.NewSQLite(opts.dbPath)
	if err != nil {
		return fmt.Errorf("open lead store: %w", err)
	}
	defer func() { _ = repo.Close() }()
	return fn(repo)
}

func withLead(ctx context.Context, opts *options, id string, fn func(*domain.StoredLead) error) error {
	return withStore(opts, func(repo store.LeadRepository) error {
		l, err := repo.GetLead(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lead %s: %w", id, err)
		}
		if err != nil {
			return fmt.Errorf("get lead: %w", err)
		}
		return fn(l)
	})
}

func renderLeads(w io.Writer, leads []*domain.StoredLead) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBMITTED\tNAME\tPHONE\tCOURSE")
	for _, l := range leads {
		course := l.Lead.PreferredCourse
		if l.CatalogCourse != "" {
			course = l.CatalogCourse
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.SubmittedAt.In(domain.BusinessLocation).Format("2006-01-02 15:04"),
			l.Lead.FullName,
			l.Lead.PhoneNumber,
			course,
		)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
