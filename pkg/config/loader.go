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

package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// EnvVar selects the active profile in YAML config files
const EnvVar = "DROPSYNC_ENV"

// DropOverlayName is the per-drop-folder overlay file
const DropOverlayName = ".sync.yml"

// 🎯 Load assembles the configuration: defaults, then the site config file,
// then the drop-folder overlay. The drop folder used for the overlay is the
// one known after the site layer (or the dropFolder override, if non-empty).
func Load(ctx context.Context, path string, dropFolder string) (*Config, error) {
	logger := zerolog.Ctx(ctx)

	// Load .env before anything reads the environment
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.Errorf("loading .env: %w", err)
		}
		logger.Debug().Msg("loaded .env")
	}

	profile := os.Getenv(EnvVar)
	if profile == "" {
		profile = "default"
	}

	cfg := Defaults()

	if path != "" {
		site, err := parseFile(ctx, path, profile)
		if err != nil {
			return nil, err
		}
		overlay(cfg, site)
		logger.Debug().Str("path", path).Str("profile", profile).Msg("applied site config")
	}

	if dropFolder != "" {
		cfg.DropFolder = dropFolder
	}

	if cfg.DropFolder != "" {
		if err := applyDropOverlay(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// 📖 parseFile reads and parses one config file
func parseFile(ctx context.Context, path string, profile string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, data, profile)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// 📖 applyDropOverlay applies the drop folder's .sync.yml, if present.
// The overlay is a flat (profile-less) YAML document.
func applyDropOverlay(ctx context.Context, cfg *Config) error {
	overlayPath := filepath.Join(cfg.DropFolder, DropOverlayName)
	data, err := os.ReadFile(overlayPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Errorf("reading drop overlay: %w", err)
	}

	var local Config
	if err := yaml.Unmarshal(data, &local); err != nil {
		return errors.Errorf("parsing drop overlay %s: %w", overlayPath, err)
	}

	// The overlay may not redirect discovery to another drop folder
	local.DropFolder = ""
	overlay(cfg, &local)

	zerolog.Ctx(ctx).Debug().Str("path", overlayPath).Msg("applied drop folder overlay")
	return nil
}

// 🔀 overlay applies non-zero fields of src on top of dst, layer by layer.
// Sections are replaced wholesale: a layer that sets metadata supplies the
// complete metadata section.
func overlay(dst *Config, src *Config) {
	if src.DropFolder != "" {
		dst.DropFolder = src.DropFolder
	}
	if src.RepositoryFolder != "" {
		dst.RepositoryFolder = src.RepositoryFolder
	}
	if src.ArchiveFolder != "" {
		dst.ArchiveFolder = src.ArchiveFolder
	}
	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}

	if src.Discovery.Glob != "" {
		dst.Discovery.Glob = src.Discovery.Glob
	}
	if src.Discovery.Pattern != "" {
		dst.Discovery.Pattern = src.Discovery.Pattern
	}
	if len(src.Discovery.Rules) > 0 {
		dst.Discovery.Rules = src.Discovery.Rules
	}

	if src.Target.Template != "" {
		dst.Target.Template = src.Target.Template
	}
	if src.Target.Disambiguation != "" {
		dst.Target.Disambiguation = src.Target.Disambiguation
	}
	if src.Target.InitialRun > 0 {
		dst.Target.InitialRun = src.Target.InitialRun
	}

	if src.Store != nil {
		dst.Store = src.Store
	}
	if src.Metadata != nil {
		dst.Metadata = src.Metadata
	}
	if src.Presence != nil {
		dst.Presence = src.Presence
	}
	if src.WriteBack != nil {
		dst.WriteBack = src.WriteBack
	}
}
