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

package integrity_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/integrity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// 🧪 TestPreCheckWithMatchingSidecar tests verification against a good .md5
func TestPreCheckWithMatchingSidecar(t *testing.T) {
	dir := t.TempDir()
	content := []byte("sequencing data")
	path := writeFile(t, dir, "sample.fastq.gz", content)

	sum := md5.Sum(content)
	digest := hex.EncodeToString(sum[:])
	writeFile(t, dir, "sample.fastq.gz.md5", []byte(digest+"  sample.fastq.gz\n"))

	rec, err := integrity.NewEngine(true).PreCheck(testContext(t), path)
	require.NoError(t, err)

	assert.Equal(t, integrity.AlgMD5, rec.Algorithm)
	assert.Equal(t, integrity.MatchOK, rec.Result)
	assert.Equal(t, digest, rec.Computed)
	assert.Equal(t, digest, rec.Reference)
}

// 🧪 TestPreCheckWithMismatchedSidecar tests a bad reference digest
func TestPreCheckWithMismatchedSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sample.fastq.gz", []byte("sequencing data"))
	writeFile(t, dir, "sample.fastq.gz.md5", []byte("00000000000000000000000000000000\n"))

	rec, err := integrity.NewEngine(true).PreCheck(testContext(t), path)
	require.NoError(t, err)

	assert.Equal(t, integrity.AlgMD5, rec.Algorithm)
	assert.Equal(t, integrity.MatchFailed, rec.Result)
}

// 🧪 TestPreCheckBaseline tests that a missing sidecar establishes a
// baseline instead of failing
func TestPreCheckBaseline(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sample.fastq.gz", []byte("sequencing data"))

	rec, err := integrity.NewEngine(true).PreCheck(testContext(t), path)
	require.NoError(t, err)

	assert.Equal(t, integrity.AlgBLAKE3, rec.Algorithm)
	assert.Equal(t, integrity.MatchBaseline, rec.Result)
	assert.Empty(t, rec.Reference)
	assert.Len(t, rec.Computed, 64)

	// Baseline sidecar was persisted beside the source
	data, err := os.ReadFile(path + ".blake3")
	require.NoError(t, err)
	assert.Equal(t, rec.Computed+"\n", string(data))
}

// 🧪 TestPreCheckBaselineDryRun tests that dry runs do not write sidecars
func TestPreCheckBaselineDryRun(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sample.fastq.gz", []byte("sequencing data"))

	rec, err := integrity.NewEngine(false).PreCheck(testContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, integrity.MatchBaseline, rec.Result)

	_, err = os.Stat(path + ".blake3")
	assert.True(t, os.IsNotExist(err))
}

// 🧪 TestPreCheckMalformedSidecar tests that funky sidecars are tolerated
func TestPreCheckMalformedSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sample.fastq.gz", []byte("sequencing data"))
	writeFile(t, dir, "sample.fastq.gz.md5", []byte("\n"))

	rec, err := integrity.NewEngine(true).PreCheck(testContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, integrity.MatchBaseline, rec.Result)
	assert.Equal(t, integrity.AlgBLAKE3, rec.Algorithm)
}

// 🧪 TestVerify tests lock-step block comparison
func TestVerify(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		src  []byte
		dst  []byte
		want bool
	}{
		{name: "identical", src: []byte("abcdef"), dst: []byte("abcdef"), want: true},
		{name: "different_content", src: []byte("abcdef"), dst: []byte("abcdeX"), want: false},
		{name: "destination_truncated", src: []byte("abcdef"), dst: []byte("abc"), want: false},
		{name: "destination_longer", src: []byte("abc"), dst: []byte("abcdef"), want: false},
		{name: "both_empty", src: []byte{}, dst: []byte{}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeFile(t, dir, tt.name+".src", tt.src)
			dst := writeFile(t, dir, tt.name+".dst", tt.dst)

			ok, err := integrity.NewEngine(true).Verify(testContext(t), src, dst)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// 🧪 TestVerifyReadFailureIsAnError tests that an unreadable stream surfaces
// as an error instead of a clean mismatch
func TestVerifyReadFailureIsAnError(t *testing.T) {
	dir := t.TempDir()
	unreadable := filepath.Join(dir, "unreadable")
	require.NoError(t, os.MkdirAll(unreadable, 0755))
	dst := writeFile(t, dir, "dst", []byte("abcdef"))

	_, err := integrity.NewEngine(true).Verify(testContext(t), unreadable, dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading source during verification")
}

// 🧪 TestPropagateSidecar tests sidecar propagation preference
func TestPropagateSidecar(t *testing.T) {
	t.Run("md5_preferred", func(t *testing.T) {
		dir := t.TempDir()
		src := writeFile(t, dir, "a.fastq.gz", []byte("data"))
		dst := writeFile(t, dir, "b.fastq.gz", []byte("data"))
		writeFile(t, dir, "a.fastq.gz.md5", []byte("feedface\n"))
		writeFile(t, dir, "a.fastq.gz.blake3", []byte("cafef00d\n"))

		alg, err := integrity.PropagateSidecar(testContext(t), src, dst)
		require.NoError(t, err)
		assert.Equal(t, integrity.AlgMD5, alg)

		data, err := os.ReadFile(dst + ".md5")
		require.NoError(t, err)
		assert.Equal(t, "feedface\n", string(data))
	})

	t.Run("blake3_fallback", func(t *testing.T) {
		dir := t.TempDir()
		src := writeFile(t, dir, "a.fastq.gz", []byte("data"))
		dst := writeFile(t, dir, "b.fastq.gz", []byte("data"))
		writeFile(t, dir, "a.fastq.gz.blake3", []byte("cafef00d\n"))

		alg, err := integrity.PropagateSidecar(testContext(t), src, dst)
		require.NoError(t, err)
		assert.Equal(t, integrity.AlgBLAKE3, alg)

		data, err := os.ReadFile(dst + ".blake3")
		require.NoError(t, err)
		assert.Equal(t, "cafef00d\n", string(data))
	})

	t.Run("none_present", func(t *testing.T) {
		dir := t.TempDir()
		src := writeFile(t, dir, "a.fastq.gz", []byte("data"))
		dst := writeFile(t, dir, "b.fastq.gz", []byte("data"))

		_, err := integrity.PropagateSidecar(testContext(t), src, dst)
		require.Error(t, err)
	})
}

// 🧪 TestShortContentHash tests deterministic short hashing
func TestShortContentHash(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.fastq.gz", []byte("identical content"))
	other := writeFile(t, dir, "b.fastq.gz", []byte("identical content"))

	h1, err := integrity.ShortContentHash(path)
	require.NoError(t, err)
	h2, err := integrity.ShortContentHash(path)
	require.NoError(t, err)
	h3, err := integrity.ShortContentHash(other)
	require.NoError(t, err)

	assert.Len(t, h1, 8)
	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3)
}
