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

package metastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"gitlab.com/tozd/go/errors"
)

// 🌐 HTTPClient talks to a LabKey-style query API over HTTPS
type HTTPClient struct {
	baseURL   string
	container string
	apiKey    string
	hc        *http.Client
}

// 🏭 NewHTTPClient creates a store client from config
func NewHTTPClient(cfg config.Store) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		container: cfg.Container,
		apiKey:    cfg.APIKey,
		hc:        &http.Client{},
	}
}

// selectRequest is the wire shape of a row query
type selectRequest struct {
	Schema  string   `json:"schemaName"`
	Query   string   `json:"queryName"`
	Columns []string `json:"columns,omitempty"`
	Filters []Filter `json:"filters,omitempty"`
}

// selectResponse is the wire shape of query results
type selectResponse struct {
	Rows []Row `json:"rows"`
}

// rowRequest is the wire shape of an update or insert
type rowRequest struct {
	Schema string `json:"schemaName"`
	Query  string `json:"queryName"`
	Rows   []Row  `json:"rows"`
}

// 🔍 SelectRows implements Client
func (c *HTTPClient) SelectRows(ctx context.Context, schema, query string, columns []string, filters []Filter) ([]Row, error) {
	body, err := c.post(ctx, "query/selectRows", selectRequest{
		Schema:  schema,
		Query:   query,
		Columns: columns,
		Filters: filters,
	})
	if err != nil {
		return nil, err
	}

	var result selectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Errorf("decoding select response: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("schema", schema).
		Str("query", query).
		Int("rows", len(result.Rows)).
		Msg("selected rows")

	return result.Rows, nil
}

// ✍️ UpdateRow implements Client
func (c *HTTPClient) UpdateRow(ctx context.Context, schema, query string, row Row) error {
	if _, ok := row.ID(); !ok {
		return errors.Errorf("%w: updating row in %s.%s without %s", ErrBadQuery, schema, query, RowIDField)
	}
	_, err := c.post(ctx, "query/updateRows", rowRequest{Schema: schema, Query: query, Rows: []Row{row}})
	return err
}

// ➕ InsertRow implements Client
func (c *HTTPClient) InsertRow(ctx context.Context, schema, query string, row Row) error {
	_, err := c.post(ctx, "query/insertRows", rowRequest{Schema: schema, Query: query, Rows: []Row{row}})
	return err
}

// 📡 post issues one API request and maps HTTP failures onto the error kinds
// the pipeline understands
func (c *HTTPClient) post(ctx context.Context, action string, payload any) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s.api", c.baseURL, c.container, action)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, errors.Errorf("%w: %s: %s", ErrBadQuery, url, strings.TrimSpace(string(body)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.Errorf("%w: %s returned %d", ErrRequest, url, resp.StatusCode)
	}

	return body, nil
}
