package commands

import (
	"os"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/seqops/dropsync/cmd/dropsync/opts"
	"github.com/seqops/dropsync/pkg/metastore"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

// NewGetCmd creates a new get command for ad-hoc store queries
func NewGetCmd(provide opts.Provider) *cobra.Command {
	var (
		columns []string
		filters []string
	)

	cmd := &cobra.Command{
		Use:   "get <schema> <query>",
		Short: "Query the metadata store and print the rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := provide(cmd.Context())
			if err != nil {
				return err
			}
			ctx := o.Logger.With().Str("command", "get").Logger().WithContext(cmd.Context())
			if o.Store == nil {
				return errors.New("no store section configured")
			}

			parsed, err := parseFilters(filters)
			if err != nil {
				return err
			}

			rows, err := o.Store.SelectRows(ctx, args[0], args[1], columns, parsed)
			if err != nil {
				return errors.Errorf("querying %s.%s: %w", args[0], args[1], err)
			}
			if len(rows) == 0 {
				o.Reporter.Warningf("no rows in %s.%s", args[0], args[1])
				return nil
			}

			return renderRows(rows, columns)
		},
	}

	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to select (default all)")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "row filters as field=value or field~value (contains)")

	return cmd
}

// parseFilters converts field=value / field~value pairs to store filters
func parseFilters(raw []string) ([]metastore.Filter, error) {
	var filters []metastore.Filter
	for _, expr := range raw {
		if field, value, ok := strings.Cut(expr, "~"); ok && !strings.Contains(field, "=") {
			filters = append(filters, metastore.Filter{Field: field, Value: value, Compare: metastore.CompareContains})
			continue
		}
		field, value, ok := strings.Cut(expr, "=")
		if !ok {
			return nil, errors.Errorf("filter %q must be field=value or field~value", expr)
		}
		filters = append(filters, metastore.Filter{Field: field, Value: value, Compare: metastore.CompareEqual})
	}
	return filters, nil
}

// renderRows prints rows as a table, deriving the header from the rows when
// no column list was given
func renderRows(rows []metastore.Row, columns []string) error {
	if len(columns) == 0 {
		seen := map[string]bool{}
		for _, row := range rows {
			for name := range row {
				if !seen[name] {
					seen[name] = true
					columns = append(columns, name)
				}
			}
		}
		sort.Strings(columns)
	}

	data := pterm.TableData{columns}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, name := range columns {
			line[i] = row.Field(name)
		}
		data = append(data, line)
	}

	if err := pterm.DefaultTable.WithHasHeader().WithWriter(os.Stdout).WithData(data).Render(); err != nil {
		return errors.Errorf("rendering rows: %w", err)
	}
	return nil
}
