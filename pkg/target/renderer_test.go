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

package target_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/fields"
	"github.com/seqops/dropsync/pkg/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

func newRenderer(repoRoot string, strategy string) *target.Renderer {
	return target.NewRenderer(repoRoot, config.Target{
		Template:       "raw/<phase>/<run>.fastq.gz",
		Disambiguation: strategy,
		InitialRun:     1,
	})
}

// 🧪 TestSequentialFirstRun tests rendering into an empty repository
func TestSequentialFirstRun(t *testing.T) {
	r := newRenderer(t.TempDir(), config.DisambiguationSequential)

	rendered, err := r.Render(testContext(t), "", fields.Map{"phase": fields.String("A")})
	require.NoError(t, err)

	assert.Equal(t, "raw/A/1.fastq.gz", rendered.Path)
	assert.Equal(t, "1", rendered.Run)
	assert.Empty(t, rendered.Probed)
}

// 🧪 TestSequentialProbesExisting tests that occupied paths are skipped
func TestSequentialProbesExisting(t *testing.T) {
	repo := t.TempDir()
	occupied := filepath.Join(repo, "raw", "A", "1.fastq.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(occupied), 0755))
	require.NoError(t, os.WriteFile(occupied, []byte("prior"), 0644))

	r := newRenderer(repo, config.DisambiguationSequential)
	rendered, err := r.Render(testContext(t), "", fields.Map{"phase": fields.String("A")})
	require.NoError(t, err)

	assert.Equal(t, "raw/A/2.fastq.gz", rendered.Path)
	assert.Equal(t, "2", rendered.Run)
	assert.Equal(t, []string{"raw/A/1.fastq.gz"}, rendered.Probed)
}

// 🧪 TestSequentialUniqueWithinRun tests same-named candidates in one run
// get strictly increasing run values
func TestSequentialUniqueWithinRun(t *testing.T) {
	r := newRenderer(t.TempDir(), config.DisambiguationSequential)
	ctx := testContext(t)
	vals := fields.Map{"phase": fields.String("A")}

	var paths []string
	for i := 0; i < 3; i++ {
		rendered, err := r.Render(ctx, "", vals)
		require.NoError(t, err)
		paths = append(paths, rendered.Path)
	}

	assert.Equal(t, []string{
		"raw/A/1.fastq.gz",
		"raw/A/2.fastq.gz",
		"raw/A/3.fastq.gz",
	}, paths)
}

// 🧪 TestHashDeterministic tests content-hash idempotence and identity
func TestHashDeterministic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sample.fastq.gz")
	require.NoError(t, os.WriteFile(src, []byte("stable content"), 0644))

	ctx := testContext(t)
	vals := fields.Map{"phase": fields.String("A")}

	first, err := newRenderer(dir, config.DisambiguationHash).Render(ctx, src, vals)
	require.NoError(t, err)
	second, err := newRenderer(dir, config.DisambiguationHash).Render(ctx, src, vals)
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)
	assert.Len(t, first.Run, 8)

	// Identical content in one run renders the same target: accepted as
	// content-addressed identity, not an error
	r := newRenderer(dir, config.DisambiguationHash)
	a, err := r.Render(ctx, src, vals)
	require.NoError(t, err)
	b, err := r.Render(ctx, src, vals)
	require.NoError(t, err)
	assert.Equal(t, a.Path, b.Path)
}

// 🧪 TestRenderUnknownPlaceholder tests the fail-closed template contract
func TestRenderUnknownPlaceholder(t *testing.T) {
	r := target.NewRenderer(t.TempDir(), config.Target{
		Template:       "raw/<mystery>/<run>.gz",
		Disambiguation: config.DisambiguationSequential,
		InitialRun:     1,
	})

	_, err := r.Render(testContext(t), "", fields.Map{"phase": fields.String("A")})
	require.Error(t, err)
	var terr *fields.TemplateError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, "mystery", terr.Placeholder)
}

// 🧪 TestNoRunPlaceholder tests duplicate detection without <run>
func TestNoRunPlaceholder(t *testing.T) {
	r := target.NewRenderer(t.TempDir(), config.Target{
		Template:       "raw/<phase>.fastq.gz",
		Disambiguation: config.DisambiguationSequential,
		InitialRun:     1,
	})
	ctx := testContext(t)
	vals := fields.Map{"phase": fields.String("A")}

	first, err := r.Render(ctx, "", vals)
	require.NoError(t, err)
	assert.Equal(t, "raw/A.fastq.gz", first.Path)

	_, err = r.Render(ctx, "", vals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already planned")
}
