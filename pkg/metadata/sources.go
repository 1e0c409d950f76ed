// Copyright 2025 seqops LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metadata loads tabular metadata sources and matches candidate
// files against them.
package metadata

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/metastore"
	"github.com/xuri/excelize/v2"
	"gitlab.com/tozd/go/errors"
)

// 📚 Source is one loaded metadata source. Rows are loaded once per
// invocation and cached for the run's duration.
type Source struct {
	Name string
	Kind string
	Rows []map[string]string
	Err  error // load failure; the source participates with zero rows
}

// 🗃️ Catalog holds every configured source in configuration order
type Catalog struct {
	sources []*Source
	byName  map[string]*Source
}

// 🏭 LoadCatalog loads all configured sources. A source that fails to load
// is reported and yields no matches; it never aborts the run.
func LoadCatalog(ctx context.Context, md config.Metadata, dropRoot string, store metastore.Client) *Catalog {
	logger := zerolog.Ctx(ctx)

	catalog := &Catalog{byName: map[string]*Source{}}
	for _, sc := range md.Sources {
		src := &Source{Name: sc.Name, Kind: sc.Kind}
		rows, err := loadSource(ctx, sc, dropRoot, store)
		if err != nil {
			src.Err = err
			logger.Warn().Str("source", sc.Name).Err(err).Msg("metadata source failed to load")
		} else {
			src.Rows = rows
			logger.Debug().Str("source", sc.Name).Int("rows", len(rows)).Msg("loaded metadata source")
		}
		catalog.sources = append(catalog.sources, src)
		catalog.byName[sc.Name] = src
	}
	return catalog
}

// 🔍 Source returns the named source, or nil
func (c *Catalog) Source(name string) *Source {
	return c.byName[name]
}

// 📋 Sources returns all sources in configuration order
func (c *Catalog) Sources() []*Source {
	return c.sources
}

func loadSource(ctx context.Context, sc config.MetadataSource, dropRoot string, store metastore.Client) ([]map[string]string, error) {
	switch sc.Kind {
	case "store":
		return loadStoreRows(ctx, sc, store)
	case "spreadsheet":
		return loadSpreadsheetRows(sc, resolvePath(dropRoot, sc.Path))
	case "delimited":
		return loadDelimitedRows(sc, resolvePath(dropRoot, sc.Path))
	default:
		return nil, errors.Errorf("unknown source kind: %s", sc.Kind)
	}
}

func resolvePath(dropRoot, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dropRoot, path)
}

func loadStoreRows(ctx context.Context, sc config.MetadataSource, store metastore.Client) ([]map[string]string, error) {
	if store == nil {
		return nil, errors.New("no store client configured")
	}

	var filters []metastore.Filter
	for _, f := range sc.Filters {
		compare := metastore.CompareEqual
		if f.Compare == config.CompareContains {
			compare = metastore.CompareContains
		}
		filters = append(filters, metastore.Filter{Field: f.Field, Value: f.Value, Compare: compare})
	}

	rows, err := store.SelectRows(ctx, sc.Schema, sc.Query, sc.Columns, filters)
	if err != nil {
		return nil, errors.Errorf("querying store source %s: %w", sc.Name, err)
	}

	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		flat := map[string]string{}
		for k := range row {
			flat[k] = row.Field(k)
		}
		out = append(out, flat)
	}
	return out, nil
}

func loadSpreadsheetRows(sc config.MetadataSource, path string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := sc.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	var out []map[string]string
	for _, cells := range rows[1:] {
		record := map[string]string{}
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(cells) {
				record[name] = cells[i]
			} else {
				record[name] = ""
			}
		}
		out = append(out, record)
	}

	return restrict(out, sc), nil
}

func loadDelimitedRows(sc config.MetadataSource, path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening delimited file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if sc.Delimiter != "" {
		reader.Comma = rune(sc.Delimiter[0])
	}
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Errorf("reading delimited file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	var out []map[string]string
	for _, cells := range records[1:] {
		record := map[string]string{}
		for i, name := range header {
			if i < len(cells) {
				record[name] = cells[i]
			} else {
				record[name] = ""
			}
		}
		out = append(out, record)
	}

	return restrict(out, sc), nil
}

// 🔎 restrict applies the column allowlist and row filters to rows loaded
// from file-based sources. Store-backed sources filter server-side.
func restrict(rows []map[string]string, sc config.MetadataSource) []map[string]string {
	out := rows[:0:0]
	for _, row := range rows {
		keep := true
		for _, f := range sc.Filters {
			if !compareValues(row[f.Field], f.Value, f.Compare) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}

		if len(sc.Columns) > 0 {
			selected := map[string]string{}
			for _, col := range sc.Columns {
				if v, ok := row[col]; ok {
					selected[col] = v
				}
			}
			row = selected
		}
		out = append(out, row)
	}
	return out
}

func compareValues(have, want, mode string) bool {
	if mode == config.CompareContains {
		return strings.Contains(have, want)
	}
	return have == want
}
