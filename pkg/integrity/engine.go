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

// Package integrity computes and verifies file digests before and after
// transfer. All digest computation streams files in fixed-size blocks; a
// whole file is never held in memory.
package integrity

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"lukechampine.com/blake3"
)

// BlockSize is the fixed read size for hashing and comparison
const BlockSize = 8 * 1024 * 1024

// 🏷️ Algorithm identifies the digest algorithm of a sidecar
type Algorithm string

const (
	AlgMD5    Algorithm = "md5"    // legacy cross-system sidecars
	AlgBLAKE3 Algorithm = "blake3" // strong baseline digest
)

// 📊 MatchResult is the outcome of a digest comparison
type MatchResult int

const (
	// MatchBaseline means no reference digest existed; a baseline was
	// established instead. Not a verification failure.
	MatchBaseline MatchResult = iota
	MatchOK
	MatchFailed
)

// String returns a string representation of MatchResult
func (r MatchResult) String() string {
	switch r {
	case MatchOK:
		return "ok"
	case MatchFailed:
		return "mismatch"
	default:
		return "baseline"
	}
}

// 📄 Record is the per-file, per-phase integrity result
type Record struct {
	Algorithm Algorithm   // algorithm that was applied
	Computed  string      // freshly computed digest
	Reference string      // digest from the sidecar, if one existed
	Result    MatchResult // comparison outcome
}

// 🔧 Engine performs pre- and post-transfer integrity checks
type Engine struct {
	blockSize int

	// persistBaseline controls whether PreCheck writes a .blake3 sidecar
	// when no reference exists. Dry runs leave the filesystem untouched.
	persistBaseline bool
}

// 🏭 NewEngine creates an integrity engine
func NewEngine(persistBaseline bool) *Engine {
	return &Engine{
		blockSize:       BlockSize,
		persistBaseline: persistBaseline,
	}
}

// 🔍 PreCheck verifies the source against its reference sidecar, or
// establishes a BLAKE3 baseline when no sidecar exists. A missing sidecar is
// neutral, never a failure.
func (e *Engine) PreCheck(ctx context.Context, path string) (Record, error) {
	logger := zerolog.Ctx(ctx)

	reference, found, err := ReadMD5Sidecar(ctx, path)
	if err != nil {
		return Record{}, err
	}

	if found {
		computed, err := e.hashFile(path, md5.New())
		if err != nil {
			return Record{}, errors.Errorf("computing md5 for %s: %w", path, err)
		}

		rec := Record{
			Algorithm: AlgMD5,
			Computed:  computed,
			Reference: reference,
			Result:    MatchOK,
		}
		if !strings.EqualFold(computed, reference) {
			rec.Result = MatchFailed
			logger.Warn().
				Str("path", path).
				Str("computed", computed).
				Str("reference", reference).
				Msg("md5 sidecar mismatch")
		}
		return rec, nil
	}

	// No reference digest: establish a strong baseline
	computed, err := e.hashFile(path, blake3.New(32, nil))
	if err != nil {
		return Record{}, errors.Errorf("computing blake3 for %s: %w", path, err)
	}

	if e.persistBaseline {
		if err := WriteBLAKE3Sidecar(ctx, path, computed); err != nil {
			return Record{}, err
		}
	}

	return Record{
		Algorithm: AlgBLAKE3,
		Computed:  computed,
		Result:    MatchBaseline,
	}, nil
}

// ✅ Verify re-reads source and destination in lock-step fixed-size blocks
// and compares byte-for-byte. File metadata is never trusted.
func (e *Engine) Verify(ctx context.Context, src, dst string) (bool, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return false, errors.Errorf("opening source for verification: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Open(dst)
	if err != nil {
		return false, errors.Errorf("opening destination for verification: %w", err)
	}
	defer dstFile.Close()

	srcBuf := make([]byte, e.blockSize)
	dstBuf := make([]byte, e.blockSize)

	for {
		srcN, srcErr := io.ReadFull(srcFile, srcBuf)
		dstN, dstErr := io.ReadFull(dstFile, dstBuf)

		srcDone := srcErr == io.EOF || srcErr == io.ErrUnexpectedEOF
		dstDone := dstErr == io.EOF || dstErr == io.ErrUnexpectedEOF

		// An I/O failure is an error, never a silent mismatch
		if srcErr != nil && !srcDone {
			return false, errors.Errorf("reading source during verification: %w", srcErr)
		}
		if dstErr != nil && !dstDone {
			return false, errors.Errorf("reading destination during verification: %w", dstErr)
		}

		if srcN != dstN || !bytes.Equal(srcBuf[:srcN], dstBuf[:dstN]) {
			return false, nil
		}

		// Both streams must exhaust simultaneously
		if srcDone || dstDone {
			return srcDone == dstDone, nil
		}
	}
}

// 🔢 hashFile streams the file into h block by block
func (e *Engine) hashFile(path string, h hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	buf := make([]byte, e.blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", errors.Errorf("hashing file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// 🔢 ShortContentHash computes the short BLAKE3 digest used for
// content-hash disambiguation. Deterministic for unchanged content.
func ShortContentHash(path string) (string, error) {
	e := &Engine{blockSize: BlockSize}
	digest, err := e.hashFile(path, blake3.New(32, nil))
	if err != nil {
		return "", err
	}
	return digest[:8], nil
}
