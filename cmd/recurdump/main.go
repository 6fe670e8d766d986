// Command recurdump inspects appointment recurrence blobs: it decodes them,
// lists their occurrences, exports them as iCalendar and keeps them in a
// local sqlite database.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/libmapirecur/recurrence"
)

type app struct {
	configPath string
	timeZone   string
	input      string

	cfg    *Config
	logger *slog.Logger
	stdin  io.Reader
}

func main() {
	if err := newRootCmd(os.Stdin).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	a := &app{stdin: stdin}
	root := &cobra.Command{
		Use:           "recurdump",
		Short:         "Inspect appointment recurrence blobs",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "recurdump.yaml", "path to the yaml config file")
	root.PersistentFlags().StringVar(&a.timeZone, "tz", "", "recurrence time zone (overrides the config file)")
	root.PersistentFlags().StringVar(&a.input, "input", "", "blob argument encoding: hex, base64 or raw (overrides the config file)")

	root.AddCommand(
		a.cmdDecode(),
		a.cmdOccurrences(),
		a.cmdICS(),
		a.cmdEncode(),
		a.cmdImport(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.timeZone != "" {
		cfg.TimeZone = a.timeZone
	}
	if a.input != "" {
		cfg.Input = a.input
		cfg.Normalize()
	}
	a.cfg = cfg
	a.logger = cfg.Logger()
	return nil
}

func (a *app) location() (*time.Location, error) {
	return recurrence.LoadLocation(a.cfg.TimeZone)
}

// blob reads and decodes a blob argument.
func (a *app) blob(arg string) ([]byte, *recurrence.Blob, error) {
	raw, err := readBlob(arg, a.cfg.Input, a.stdin)
	if err != nil {
		return nil, nil, err
	}
	b, err := recurrence.Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("decoded blob", "size", len(raw), "exceptions", len(b.Exceptions), "deleted", len(b.Deleted))
	return raw, b, nil
}

// item wraps a blob argument in an item without stored messages.
func (a *app) item(arg string, props recurrence.Properties) (*recurrence.Item, error) {
	raw, b, err := a.blob(arg)
	if err != nil {
		return nil, err
	}
	loc, err := a.location()
	if err != nil {
		return nil, err
	}
	return recurrence.FromBlob("", props, loc, b, raw, nil, recurrence.WithLogger(a.logger)), nil
}

func parseWhen(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (want RFC 3339, 2006-01-02T15:04 or 2006-01-02)", s)
}
