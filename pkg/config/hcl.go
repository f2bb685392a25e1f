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

package config

import (
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

// 📝 Parse parses the config from HCL
func (p *HCLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "config.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	// Create evaluation context
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	// Define HCL schema
	type hclConfig struct {
		Origin      string   `hcl:"origin"`
		HTMLRoot    string   `hcl:"html_root"`
		StagingRoot string   `hcl:"staging_root,optional"`
		Pages       []string `hcl:"pages"`
		Allow       []string `hcl:"allow,optional"`
		Remote      struct {
			BaseURL         string `hcl:"base_url"`
			Token           string `hcl:"token,optional"`
			ServeBaseURL    string `hcl:"serve_base_url"`
			DeliveryBaseURL string `hcl:"delivery_base_url"`
			MaxFilesPerCall int    `hcl:"max_files_per_call,optional"`
		} `hcl:"remote,block"`
		Download *struct {
			MaxRetries      int  `hcl:"max_retries,optional"`
			RetryDelayMs    int  `hcl:"retry_delay_ms,optional"`
			Concurrency     int  `hcl:"concurrency,optional"`
			NormalizeImages bool `hcl:"normalize_images,optional"`
			Compress        bool `hcl:"compress,optional"`
			Cache           bool `hcl:"cache,optional"`
			SizeCeilingMB   int  `hcl:"size_ceiling_mb,optional"`
			MaxDimensionPx  int  `hcl:"max_dimension_px,optional"`
		} `hcl:"download,block"`
		Upload *struct {
			MaxRetries       int `hcl:"max_retries,optional"`
			RetryDelayMs     int `hcl:"retry_delay_ms,optional"`
			BatchSize        int `hcl:"batch_size,optional"`
			BatchConcurrency int `hcl:"batch_concurrency,optional"`
		} `hcl:"upload,block"`
		KeepStaging bool   `hcl:"keep_staging,optional"`
		ReportPath  string `hcl:"report_path,optional"`
	}

	// Decode HCL
	var hclCfg hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hclCfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	// Convert to model
	cfg := &Config{
		Origin:      hclCfg.Origin,
		HTMLRoot:    hclCfg.HTMLRoot,
		StagingRoot: hclCfg.StagingRoot,
		Pages:       hclCfg.Pages,
		Allow:       hclCfg.Allow,
		Remote: RemoteArgs{
			BaseURL:         hclCfg.Remote.BaseURL,
			Token:           hclCfg.Remote.Token,
			ServeBaseURL:    hclCfg.Remote.ServeBaseURL,
			DeliveryBaseURL: hclCfg.Remote.DeliveryBaseURL,
			MaxFilesPerCall: hclCfg.Remote.MaxFilesPerCall,
		},
		KeepStaging: hclCfg.KeepStaging,
		ReportPath:  hclCfg.ReportPath,
	}

	if hclCfg.Download != nil {
		cfg.Download = DownloadArgs{
			MaxRetries:      hclCfg.Download.MaxRetries,
			RetryDelayMs:    hclCfg.Download.RetryDelayMs,
			Concurrency:     hclCfg.Download.Concurrency,
			NormalizeImages: hclCfg.Download.NormalizeImages,
			Compress:        hclCfg.Download.Compress,
			Cache:           hclCfg.Download.Cache,
			SizeCeilingMB:   hclCfg.Download.SizeCeilingMB,
			MaxDimensionPx:  hclCfg.Download.MaxDimensionPx,
		}
	}

	if hclCfg.Upload != nil {
		cfg.Upload = UploadArgs{
			MaxRetries:       hclCfg.Upload.MaxRetries,
			RetryDelayMs:     hclCfg.Upload.RetryDelayMs,
			BatchSize:        hclCfg.Upload.BatchSize,
			BatchConcurrency: hclCfg.Upload.BatchConcurrency,
		}
	}

	return cfg, nil
}
