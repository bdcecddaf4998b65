// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads xref.config.yaml, the per-project analysis settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/pyxref/services/xref/graph"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the analysis root.
const FileName = "xref.config.yaml"

// ErrInvalidConfig is returned for a config file that does not parse or
// fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the analysis settings.
//
// Description:
//
//	Every field is optional. Zero values mean "use the default", which is
//	why the two default-true switches are pointers.
//
// Thread Safety: Safe for concurrent reads after Load.
type Config struct {
	// Extensions are the analyzable source extensions. Default: [".py"]
	Extensions []string `yaml:"extensions" validate:"omitempty,dive,startswith=."`

	// Ignore replaces the default ignored directory and file names.
	Ignore []string `yaml:"ignore" validate:"omitempty,dive,required"`

	// QueryDir restricts analysis to a root-relative folder.
	QueryDir string `yaml:"query_dir"`

	// Workers bounds the per-module worker pool. 0 means NumCPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`

	// MaxFileSize in bytes. 0 means the parser default.
	MaxFileSize int64 `yaml:"max_file_size" validate:"gte=0"`

	// StrictSyntax excludes modules with syntax errors. Default: true
	StrictSyntax *bool `yaml:"strict_syntax"`

	// FallbackAliases records aliases for fallback script dependencies.
	FallbackAliases bool `yaml:"fallback_aliases"`

	// IncludeMethods infers call targets for methods. Default: true
	IncludeMethods *bool `yaml:"include_methods"`

	Snapshots SnapshotConfig      `yaml:"snapshots"`
	Server    ServerConfig        `yaml:"server"`
	Influx    graph.InfluxOptions `yaml:"influx"`
}

// SnapshotConfig locates the snapshot database.
type SnapshotConfig struct {
	// Dir is the BadgerDB directory. Default: <root>/.xref/snapshots
	Dir string `yaml:"dir"`
}

// ServerConfig configures `xref serve`.
type ServerConfig struct {
	// Addr is the listen address. Default: ":8090"
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`

	// RateLimit is the sustained requests per second per client. 0 disables.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// Burst is the rate limiter bucket size. Default: 20
	Burst int `yaml:"burst" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	strict, methods := true, true
	return Config{
		Extensions:     []string{".py"},
		Ignore:         append([]string(nil), graph.DefaultIgnorePatterns...),
		StrictSyntax:   &strict,
		IncludeMethods: &methods,
		Server:         ServerConfig{Addr: ":8090", RateLimit: 10, Burst: 20},
	}
}

// Load reads <root>/xref.config.yaml over the defaults. A missing file
// yields the defaults and no error.
func Load(root string) (Config, error) {
	if root == "" {
		return Default(), nil
	}
	return LoadFile(filepath.Join(root, FileName))
}

// LoadFile reads one config file over the defaults.
//
// Errors:
//
//	ErrInvalidConfig for malformed YAML, unknown keys or failed validation.
//	A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// StrictSyntaxEnabled resolves the default-true switch.
func (c Config) StrictSyntaxEnabled() bool {
	return c.StrictSyntax == nil || *c.StrictSyntax
}

// IncludeMethodsEnabled resolves the default-true switch.
func (c Config) IncludeMethodsEnabled() bool {
	return c.IncludeMethods == nil || *c.IncludeMethods
}

// AnalyzerOptions converts the config into analyzer options.
func (c Config) AnalyzerOptions() []graph.AnalyzerOption {
	opts := []graph.AnalyzerOption{
		graph.WithQueryDir(c.QueryDir),
		graph.WithFallbackAliases(c.FallbackAliases),
		graph.WithStrictSyntax(c.StrictSyntaxEnabled()),
		graph.WithIncludeMethods(c.IncludeMethodsEnabled()),
	}
	if len(c.Extensions) > 0 {
		opts = append(opts, graph.WithExtensions(c.Extensions...))
	}
	if c.Ignore != nil {
		opts = append(opts, graph.WithIgnorePatterns(c.Ignore...))
	}
	if c.Workers > 0 {
		opts = append(opts, graph.WithWorkers(c.Workers))
	}
	if c.MaxFileSize > 0 {
		opts = append(opts, graph.WithMaxFileSize(c.MaxFileSize))
	}
	return opts
}

// SnapshotDir returns the snapshot directory for root.
func (c Config) SnapshotDir(root string) string {
	if c.Snapshots.Dir != "" {
		if filepath.IsAbs(c.Snapshots.Dir) {
			return c.Snapshots.Dir
		}
		return filepath.Join(root, c.Snapshots.Dir)
	}
	return filepath.Join(root, ".xref", "snapshots")
}
