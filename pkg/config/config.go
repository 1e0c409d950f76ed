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

// Package config assembles the pipeline configuration from ordered override
// layers: built-in defaults, the site config file, the drop-folder overlay
// and finally command-line flags. The result is immutable for the run.
package config

import (
	"fmt"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

// 🔄 TransformRule rewrites or derives a field after pattern capture and
// before any templating
type TransformRule struct {
	Field  string            `yaml:"field" hcl:"field"`
	Op     string            `yaml:"op" hcl:"op"`                            // lower | upper | map
	Target string            `yaml:"target,omitempty" hcl:"target,optional"` // destination field, defaults to Field
	Values map[string]string `yaml:"values,omitempty" hcl:"values,optional"` // lookup table for op=map
}

// 🔍 Discovery configures candidate file discovery and identity extraction
type Discovery struct {
	Glob    string          `yaml:"glob" hcl:"glob"`
	Pattern string          `yaml:"pattern" hcl:"pattern"` // fully anchored, named capture groups
	Rules   []TransformRule `yaml:"transforms,omitempty" hcl:"transform,block"`
}

// 🎯 Target configures target path rendering and collision disambiguation
type Target struct {
	Template       string `yaml:"template" hcl:"template"`
	Disambiguation string `yaml:"disambiguation,omitempty" hcl:"disambiguation,optional"` // sequential | hash
	InitialRun     int    `yaml:"initial_run,omitempty" hcl:"initial_run,optional"`
}

// 🗄️ Store configures the external metadata store client
type Store struct {
	BaseURL   string `yaml:"base_url" hcl:"base_url"`
	Container string `yaml:"container" hcl:"container"`
	APIKey    string `yaml:"api_key,omitempty" hcl:"api_key,optional"`
}

// 🔎 RowFilter narrows down rows loaded from a metadata source
type RowFilter struct {
	Field   string `yaml:"field" hcl:"field"`
	Compare string `yaml:"compare,omitempty" hcl:"compare,optional"` // equal | contains
	Value   string `yaml:"value" hcl:"value"`
}

// 📚 MetadataSource describes one tabular metadata source
type MetadataSource struct {
	Name      string      `yaml:"name" hcl:"name,label"`
	Kind      string      `yaml:"kind" hcl:"kind"` // store | spreadsheet | delimited
	Schema    string      `yaml:"schema,omitempty" hcl:"schema,optional"`
	Query     string      `yaml:"query,omitempty" hcl:"query,optional"`
	Path      string      `yaml:"path,omitempty" hcl:"path,optional"` // relative paths resolve against the drop folder
	Sheet     string      `yaml:"sheet,omitempty" hcl:"sheet,optional"`
	Delimiter string      `yaml:"delimiter,omitempty" hcl:"delimiter,optional"`
	Columns   []string    `yaml:"columns,omitempty" hcl:"columns,optional"`
	Filters   []RowFilter `yaml:"filters,omitempty" hcl:"filter,block"`
}

// 🔗 MatchRule looks up a file's metadata record in one source
type MatchRule struct {
	Source  string `yaml:"source" hcl:"source"`
	Field   string `yaml:"field" hcl:"field"`
	Key     string `yaml:"key" hcl:"key"` // template over captured/derived fields only
	Compare string `yaml:"compare,omitempty" hcl:"compare,optional"`
}

// 📖 Metadata configures metadata sources and ordered match rules
type Metadata struct {
	Required bool             `yaml:"required,omitempty" hcl:"required,optional"`
	Sources  []MetadataSource `yaml:"sources" hcl:"source,block"`
	Rules    []MatchRule      `yaml:"rules" hcl:"rule,block"`
}

// 🔍 Presence configures the existing-record check in the store
type Presence struct {
	Schema  string `yaml:"schema" hcl:"schema"`
	Query   string `yaml:"query" hcl:"query"`
	Field   string `yaml:"field" hcl:"field"`
	Compare string `yaml:"compare,omitempty" hcl:"compare,optional"`
}

// ✍️ WriteBack configures record updates/creates against the store
type WriteBack struct {
	Schema        string            `yaml:"schema" hcl:"schema"`
	Query         string            `yaml:"query" hcl:"query"`
	DisableCreate bool              `yaml:"disable_create,omitempty" hcl:"disable_create,optional"`
	Fields        map[string]string `yaml:"fields" hcl:"fields"` // column -> value template
}

// 📚 Config is the complete pipeline configuration
type Config struct {
	DropFolder       string     `yaml:"drop_folder" hcl:"drop_folder,optional"`
	RepositoryFolder string     `yaml:"repository_folder" hcl:"repository_folder,optional"`
	ArchiveFolder    string     `yaml:"archive_folder,omitempty" hcl:"archive_folder,optional"`
	LogFile          string     `yaml:"log_file,omitempty" hcl:"log_file,optional"`
	Discovery        Discovery  `yaml:"discovery" hcl:"discovery,block"`
	Target           Target     `yaml:"target" hcl:"target,block"`
	Store            *Store     `yaml:"store,omitempty" hcl:"store,block"`
	Metadata         *Metadata  `yaml:"metadata,omitempty" hcl:"metadata,block"`
	Presence         *Presence  `yaml:"presence,omitempty" hcl:"presence,block"`
	WriteBack        *WriteBack `yaml:"write_back,omitempty" hcl:"write_back,block"`
}

// Disambiguation strategies
const (
	DisambiguationSequential = "sequential"
	DisambiguationHash       = "hash"
)

// Comparison modes
const (
	CompareEqual    = "equal"
	CompareContains = "contains"
)

// 🏭 Defaults returns the built-in base layer
func Defaults() *Config {
	return &Config{
		Discovery: Discovery{
			Glob: "**/*",
		},
		Target: Target{
			Disambiguation: DisambiguationSequential,
			InitialRun:     1,
		},
	}
}

// 🔍 Validate checks if the configuration is valid. Validation failures are
// fatal: they abort the run before any file is processed.
func (cfg *Config) Validate() error {
	if cfg.DropFolder == "" {
		return errors.New("drop_folder is required")
	}
	if cfg.RepositoryFolder == "" {
		return errors.New("repository_folder is required")
	}
	if cfg.Discovery.Glob == "" {
		return errors.New("discovery.glob is required")
	}
	if cfg.Discovery.Pattern == "" {
		return errors.New("discovery.pattern is required")
	}
	if cfg.Target.Template == "" {
		return errors.New("target.template is required")
	}

	switch cfg.Target.Disambiguation {
	case "":
		cfg.Target.Disambiguation = DisambiguationSequential
	case DisambiguationSequential, DisambiguationHash:
	default:
		return errors.Errorf("target.disambiguation must be %q or %q, got %q",
			DisambiguationSequential, DisambiguationHash, cfg.Target.Disambiguation)
	}
	if cfg.Target.InitialRun <= 0 {
		cfg.Target.InitialRun = 1
	}

	for i, rule := range cfg.Discovery.Rules {
		if rule.Field == "" {
			return errors.Errorf("discovery.transforms[%d]: field is required", i)
		}
		switch rule.Op {
		case "lower", "upper":
		case "map":
			if len(rule.Values) == 0 {
				return errors.Errorf("discovery.transforms[%d]: op=map requires values", i)
			}
		default:
			return errors.Errorf("discovery.transforms[%d]: unknown op %q", i, rule.Op)
		}
	}

	if cfg.Metadata != nil {
		sources := map[string]bool{}
		for i, src := range cfg.Metadata.Sources {
			if src.Name == "" {
				return errors.Errorf("metadata.sources[%d]: name is required", i)
			}
			switch src.Kind {
			case "store":
				if cfg.Store == nil {
					return errors.Errorf("metadata.sources[%d]: kind=store requires a store section", i)
				}
				if src.Schema == "" || src.Query == "" {
					return errors.Errorf("metadata.sources[%d]: kind=store requires schema and query", i)
				}
			case "spreadsheet", "delimited":
				if src.Path == "" {
					return errors.Errorf("metadata.sources[%d]: kind=%s requires a path", i, src.Kind)
				}
			default:
				return errors.Errorf("metadata.sources[%d]: unknown kind %q", i, src.Kind)
			}
			sources[src.Name] = true
		}
		for i, rule := range cfg.Metadata.Rules {
			if !sources[rule.Source] {
				return errors.Errorf("metadata.rules[%d]: unknown source %q", i, rule.Source)
			}
			if rule.Field == "" || rule.Key == "" {
				return errors.Errorf("metadata.rules[%d]: field and key are required", i)
			}
			if err := validateCompare(rule.Compare); err != nil {
				return errors.Errorf("metadata.rules[%d]: %w", i, err)
			}
		}
	}

	if cfg.Presence != nil {
		if cfg.Store == nil {
			return errors.New("presence requires a store section")
		}
		if cfg.Presence.Schema == "" || cfg.Presence.Query == "" || cfg.Presence.Field == "" {
			return errors.New("presence requires schema, query and field")
		}
		if err := validateCompare(cfg.Presence.Compare); err != nil {
			return errors.Errorf("presence: %w", err)
		}
	}

	if cfg.WriteBack != nil {
		if cfg.Store == nil {
			return errors.New("write_back requires a store section")
		}
		if cfg.WriteBack.Schema == "" || cfg.WriteBack.Query == "" {
			return errors.New("write_back requires schema and query")
		}
		if len(cfg.WriteBack.Fields) == 0 {
			return errors.New("write_back requires at least one field mapping")
		}
	}

	// Clean up paths
	cfg.DropFolder = filepath.Clean(cfg.DropFolder)
	cfg.RepositoryFolder = filepath.Clean(cfg.RepositoryFolder)
	if cfg.ArchiveFolder != "" {
		cfg.ArchiveFolder = filepath.Clean(cfg.ArchiveFolder)
	}

	return nil
}

func validateCompare(mode string) error {
	switch mode {
	case "", CompareEqual, CompareContains:
		return nil
	default:
		return errors.Errorf("compare must be %q or %q, got %q", CompareEqual, CompareContains, mode)
	}
}

// 📝 String returns a short description of the config
func (cfg *Config) String() string {
	return fmt.Sprintf("%s -> %s (%s)", cfg.DropFolder, cfg.RepositoryFolder, cfg.Target.Template)
}
