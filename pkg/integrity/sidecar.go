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

package integrity

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 📄 SidecarPath returns the sidecar path for a data file and algorithm
func SidecarPath(path string, alg Algorithm) string {
	return path + "." + string(alg)
}

// 📖 ReadMD5Sidecar returns the reference digest from a .md5 sidecar if one
// exists beside the file. The digest is the first token on the first line
// (the conventional `<digest>  <filename>` layout). A malformed sidecar is
// tolerated and treated as absent.
func ReadMD5Sidecar(ctx context.Context, path string) (string, bool, error) {
	sidecar := SidecarPath(path, AlgMD5)

	data, err := os.ReadFile(sidecar)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Errorf("reading md5 sidecar: %w", err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		zerolog.Ctx(ctx).Warn().Str("sidecar", sidecar).Msg("empty md5 sidecar, ignoring")
		return "", false, nil
	}

	return tokens[0], true, nil
}

// ✍️ WriteBLAKE3Sidecar persists a freshly computed baseline digest beside
// the data file
func WriteBLAKE3Sidecar(ctx context.Context, path string, digest string) error {
	sidecar := SidecarPath(path, AlgBLAKE3)
	if err := os.WriteFile(sidecar, []byte(digest+"\n"), 0644); err != nil {
		return errors.Errorf("writing blake3 sidecar: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("sidecar", sidecar).Msg("wrote baseline sidecar")
	return nil
}

// 📤 PropagateSidecar copies the sidecar that was used or created for
// verification to sit beside the destination file. Returns which kind was
// propagated. Preference follows verification: .md5 first, then .blake3.
func PropagateSidecar(ctx context.Context, src, dst string) (Algorithm, error) {
	for _, alg := range []Algorithm{AlgMD5, AlgBLAKE3} {
		srcSidecar := SidecarPath(src, alg)
		if _, err := os.Stat(srcSidecar); os.IsNotExist(err) {
			continue
		} else if err != nil {
			return "", errors.Errorf("checking sidecar existence: %w", err)
		}

		if err := copySidecar(srcSidecar, SidecarPath(dst, alg)); err != nil {
			return alg, err
		}
		return alg, nil
	}

	return "", errors.Errorf("no sidecar found beside %s", src)
}

func copySidecar(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Errorf("opening sidecar: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Errorf("creating destination sidecar: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Errorf("copying sidecar: %w", err)
	}

	return nil
}
