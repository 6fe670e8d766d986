package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cyp0633/libmapirecur/appointment"
	"github.com/cyp0633/libmapirecur/internal/xml"
	"github.com/cyp0633/libmapirecur/recurrence"
	"github.com/cyp0633/libmapirecur/storage/sqlite"
)

func (a *app) cmdDecode() *cobra.Command {
	var format string
	c := &cobra.Command{
		Use:     "decode <blob>",
		Short:   "Print every field of a blob",
		Example: "recurdump decode 0430043004300B20...",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := a.blob(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "xml":
				_, err = xml.Render(b).WriteTo(out)
				return err
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(b)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	c.Flags().StringVarP(&format, "format", "f", "json", "output format: json or xml")
	return c
}

func (a *app) cmdOccurrences() *cobra.Command {
	var (
		from, to string
		limit    int
		id       string
	)
	c := &cobra.Command{
		Use:   "occurrences [<blob>]",
		Short: "List the effective occurrences of a blob or a stored item",
		Long: `List the effective occurrences within a window. Without --to an
unbounded series is cut at --limit occurrences (default from max_occurrences).
With --id the item is read from the database instead of the argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.location()
			if err != nil {
				return err
			}
			var w recurrence.Window
			if w.Start, err = parseWhen(from, loc); err != nil {
				return err
			}
			if w.End, err = parseWhen(to, loc); err != nil {
				return err
			}
			if limit <= 0 {
				limit = a.cfg.MaxOccurrences
			}

			var it *recurrence.Item
			switch {
			case id != "":
				repo, closeFn, err := a.repository()
				if err != nil {
					return err
				}
				defer closeFn()
				if it, err = repo.Load(cmd.Context(), id); err != nil {
					return err
				}
			case len(args) == 1:
				if it, err = a.item(args[0], recurrence.Properties{}); err != nil {
					return err
				}
			default:
				return fmt.Errorf("need a blob argument or --id")
			}

			occs, err := it.CollectOccurrences(w, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, o := range occs {
				mark := ""
				switch {
				case o.Cancelled:
					mark = " cancelled"
				case o.IsException:
					mark = " exception"
				}
				fmt.Fprintf(out, "%s  %s%s", o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339), mark)
				if o.IsException && !o.Start.Equal(o.OriginalStart) {
					fmt.Fprintf(out, " (was %s)", o.OriginalStart.Format(time.RFC3339))
				}
				if o.Subject != "" {
					fmt.Fprintf(out, "  %q", o.Subject)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	c.Flags().StringVar(&from, "from", "", "window start")
	c.Flags().StringVar(&to, "to", "", "window end")
	c.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of occurrences")
	c.Flags().StringVar(&id, "id", "", "stored item id")
	return c
}

func (a *app) cmdICS() *cobra.Command {
	var subject string
	c := &cobra.Command{
		Use:   "ics <blob>",
		Short: "Export a blob as an iCalendar VEVENT series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := a.item(args[0], recurrence.Properties{Subject: subject, BusyStatus: recurrence.BusyBusy})
			if err != nil {
				return err
			}
			it.ID = uuid.NewString()
			text, err := recurrence.EncodeICal(it)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
	c.Flags().StringVar(&subject, "subject", "", "series subject")
	return c
}

func (a *app) cmdEncode() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <file.xml>",
		Short: "Encode an XML dump (as printed by decode -f xml) back to a hex blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := etree.NewDocument()
			var err error
			if args[0] == "-" {
				_, err = doc.ReadFrom(a.stdin)
			} else {
				err = doc.ReadFromFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading xml: %w", err)
			}
			b, err := xml.Parse(doc)
			if err != nil {
				return err
			}
			raw, err := recurrence.Encode(b)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(raw))
			return err
		},
	}
}

func (a *app) cmdImport() *cobra.Command {
	var (
		id      string
		subject string
		db      string
	)
	c := &cobra.Command{
		Use:   "import <blob>",
		Short: "Store a blob as a recurring item in the sqlite database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if db != "" {
				a.cfg.Database = db
			}
			it, err := a.item(args[0], recurrence.Properties{Subject: subject, BusyStatus: recurrence.BusyBusy})
			if err != nil {
				return err
			}
			it.ID = id
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			repo, closeFn, err := a.repository()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := repo.Create(cmd.Context(), it); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), it.ID)
			return err
		},
	}
	c.Flags().StringVar(&id, "id", "", "item id (default: a new uuid)")
	c.Flags().StringVar(&subject, "subject", "", "series subject")
	c.Flags().StringVar(&db, "db", "", "sqlite database file (overrides the config file)")
	return c
}

// repository opens the configured database.
func (a *app) repository() (*appointment.Repository, func(), error) {
	store, err := sqlite.Open(a.cfg.Database, sqlite.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	repo := appointment.New(store,
		appointment.WithLogger(a.logger),
		appointment.WithConfig(recurrence.Config{MaxOccurrences: a.cfg.MaxOccurrences}),
	)
	closeFn := func() {
		repo.Close()
		if err := store.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "closing database:", err)
		}
	}
	return repo, closeFn, nil
}
