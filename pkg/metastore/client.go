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

// Package metastore is the client for the external metadata store. The
// pipeline only requires reading rows matching a filter, writing a row by
// stable identifier, and failure reporting by kind.
package metastore

import (
	"context"
	"fmt"
	"strconv"

	"gitlab.com/tozd/go/errors"
)

// Failure kinds surfaced to the pipeline. Each is caught, reported with
// file/row context and treated as a skip for that file's write-back, never
// fatal to the run.
var (
	ErrUnreachable = errors.New("metadata store unreachable")
	ErrNotFound    = errors.New("container, schema or table not found")
	ErrBadQuery    = errors.New("malformed query")
	ErrRequest     = errors.New("request failed")
)

// RowIDField is the stable identifier column of store rows
const RowIDField = "RowId"

// 🔖 Compare selects filter semantics
type Compare string

const (
	CompareEqual    Compare = "eq"
	CompareContains Compare = "contains"
)

// 🔎 Filter narrows a row query by one field
type Filter struct {
	Field   string  `json:"field"`
	Value   string  `json:"value"`
	Compare Compare `json:"compare"`
}

// 📄 Row is one record as an opaque field -> value mapping
type Row map[string]any

// 🔑 ID returns the row's stable identifier, if it exposes one
func (r Row) ID() (int64, bool) {
	v, ok := r[RowIDField]
	if !ok || v == nil {
		return 0, false
	}
	switch id := v.(type) {
	case float64: // JSON numbers decode as float64
		return int64(id), true
	case int64:
		return id, true
	case int:
		return int64(id), true
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// 📝 Field returns a row value rendered as a string
func (r Row) Field(name string) string {
	v, ok := r[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// 🔌 Client is the metadata store interface required by the pipeline
type Client interface {
	// SelectRows queries rows of schema/query matching every filter,
	// reading only the selected columns (all columns when empty)
	SelectRows(ctx context.Context, schema, query string, columns []string, filters []Filter) ([]Row, error)

	// UpdateRow updates an existing row; the row must carry RowId
	UpdateRow(ctx context.Context, schema, query string, row Row) error

	// InsertRow inserts a new row
	InsertRow(ctx context.Context, schema, query string, row Row) error
}
