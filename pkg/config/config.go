// Copyright 2025 walteh LLC
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

// Package config loads and validates migration run configuration from
// YAML or HCL files.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 🌐 RemoteArgs configures the managed store transport.
type RemoteArgs struct {
	BaseURL         string `json:"base_url" yaml:"base_url"`
	Token           string `json:"token,omitempty" yaml:"token,omitempty"`
	ServeBaseURL    string `json:"serve_base_url" yaml:"serve_base_url"`
	DeliveryBaseURL string `json:"delivery_base_url" yaml:"delivery_base_url"`
	MaxFilesPerCall int    `json:"max_files_per_call,omitempty" yaml:"max_files_per_call,omitempty"`
}

// 📥 DownloadArgs tunes the download stage.
type DownloadArgs struct {
	MaxRetries      int  `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelayMs    int  `json:"retry_delay_ms,omitempty" yaml:"retry_delay_ms,omitempty"`
	Concurrency     int  `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	NormalizeImages bool `json:"normalize_images,omitempty" yaml:"normalize_images,omitempty"`
	Compress        bool `json:"compress,omitempty" yaml:"compress,omitempty"`
	Cache           bool `json:"cache,omitempty" yaml:"cache,omitempty"`
	SizeCeilingMB   int  `json:"size_ceiling_mb,omitempty" yaml:"size_ceiling_mb,omitempty"`
	MaxDimensionPx  int  `json:"max_dimension_px,omitempty" yaml:"max_dimension_px,omitempty"`
}

// 📤 UploadArgs tunes the upload stage.
type UploadArgs struct {
	MaxRetries       int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelayMs     int `json:"retry_delay_ms,omitempty" yaml:"retry_delay_ms,omitempty"`
	BatchSize        int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	BatchConcurrency int `json:"batch_concurrency,omitempty" yaml:"batch_concurrency,omitempty"`
}

// 📚 Config represents the complete migration configuration
type Config struct {
	Origin      string       `json:"origin" yaml:"origin"`
	HTMLRoot    string       `json:"html_root" yaml:"html_root"`
	StagingRoot string       `json:"staging_root" yaml:"staging_root"`
	Pages       []string     `json:"pages" yaml:"pages"`
	Allow       []string     `json:"allow,omitempty" yaml:"allow,omitempty"`
	Remote      RemoteArgs   `json:"remote" yaml:"remote"`
	Download    DownloadArgs `json:"download,omitempty" yaml:"download,omitempty"`
	Upload      UploadArgs   `json:"upload,omitempty" yaml:"upload,omitempty"`
	KeepStaging bool         `json:"keep_staging,omitempty" yaml:"keep_staging,omitempty"`
	ReportPath  string       `json:"report_path,omitempty" yaml:"report_path,omitempty"`
}

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// 🔍 Validate checks required fields and fills defaults. Stage-level tuning
// values are left at zero here; the orchestrators apply their documented
// defaults.
func (cfg *Config) Validate() error {
	if cfg.Origin == "" {
		return errors.Errorf("origin is required")
	}
	if !strings.HasPrefix(cfg.Origin, "http://") && !strings.HasPrefix(cfg.Origin, "https://") {
		return errors.Errorf("origin must be an absolute http(s) URL")
	}
	if cfg.HTMLRoot == "" {
		return errors.Errorf("html_root is required")
	}
	if len(cfg.Pages) == 0 {
		return errors.Errorf("at least one page is required")
	}
	if cfg.Remote.BaseURL == "" {
		return errors.Errorf("remote.base_url is required")
	}
	if cfg.Remote.ServeBaseURL == "" {
		return errors.Errorf("remote.serve_base_url is required")
	}
	if cfg.Remote.DeliveryBaseURL == "" {
		return errors.Errorf("remote.delivery_base_url is required")
	}

	if cfg.StagingRoot == "" {
		cfg.StagingRoot = ".webmigrate-staging"
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = "run-report.json"
	}
	return nil
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	return fmt.Sprintf("%s (%d pages) -> %s", cfg.Origin, len(cfg.Pages), cfg.Remote.BaseURL)
}

func init() {
	Register(&YAMLParser{})
}

// 🔧 YAMLParser implements the Parser interface for YAML files
type YAMLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *YAMLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

// 📝 Parse parses the config from YAML
func (p *YAMLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}
