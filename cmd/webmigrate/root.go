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

package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/webmigrate/pkg/config"
	"github.com/walteh/webmigrate/pkg/download"
	"github.com/walteh/webmigrate/pkg/imaging"
	"github.com/walteh/webmigrate/pkg/log"
	"github.com/walteh/webmigrate/pkg/pipeline"
	"github.com/walteh/webmigrate/pkg/progress"
	"github.com/walteh/webmigrate/pkg/stage"
	"github.com/walteh/webmigrate/pkg/transport"
	"github.com/walteh/webmigrate/pkg/upload"
	"gitlab.com/tozd/go/errors"
)

// tokenEnvVar overrides the config token so it can stay out of files
// checked into version control.
const tokenEnvVar = "WEBMIGRATE_TOKEN"

var (
	// Flags
	configFile string
	debug      bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webmigrate",
		Short: "migrate web pages and their assets to a managed content store",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "migrate.yaml", "config file path")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newPlanCmd())

	return cmd
}

// setupLogging configures zerolog based on flags
func setupLogging() {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
}

// loadRunConfig loads the config file and applies the token override.
func loadRunConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, configFile)
	if err != nil {
		return nil, err
	}
	if token := os.Getenv(tokenEnvVar); token != "" {
		cfg.Remote.Token = token
	}
	return cfg, nil
}

// buildCoordinator wires the stage managers, transports, and orchestrators
// from a loaded config.
func buildCoordinator(cfg *config.Config, console *log.Logger) (*pipeline.Coordinator, *stage.Manager, error) {
	pages := stage.New(cfg.HTMLRoot)
	staging := stage.New(cfg.StagingRoot)
	if err := staging.CreateDir(""); err != nil {
		return nil, nil, errors.Errorf("creating staging root: %w", err)
	}

	fetcher := transport.NewHTTPFetcher(nil)
	uploader := transport.NewHTTPUploader(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.MaxFilesPerCall, nil)

	downloads := download.New(fetcher, staging, imaging.NewStdCodec(), download.Options{
		MaxRetries:      cfg.Download.MaxRetries,
		RetryDelay:      time.Duration(cfg.Download.RetryDelayMs) * time.Millisecond,
		Concurrency:     cfg.Download.Concurrency,
		NormalizeImages: cfg.Download.NormalizeImages,
		Compress:        cfg.Download.Compress,
		UseCache:        cfg.Download.Cache,
		SizeCeiling:     int64(cfg.Download.SizeCeilingMB) << 20,
		MaxDimension:    cfg.Download.MaxDimensionPx,
	})

	var obs progress.Observer
	if debug {
		obs = progress.NewConsole(os.Stderr)
	}
	uploads := upload.New(uploader, staging, obs, upload.Options{
		MaxRetries:       cfg.Upload.MaxRetries,
		RetryDelay:       time.Duration(cfg.Upload.RetryDelayMs) * time.Millisecond,
		BatchSize:        cfg.Upload.BatchSize,
		BatchConcurrency: cfg.Upload.BatchConcurrency,
	})

	coord := pipeline.New(pages, staging, downloads, uploads, console, pipeline.Options{
		Origin:          cfg.Origin,
		Allow:           cfg.Allow,
		ServeBaseURL:    cfg.Remote.ServeBaseURL,
		DeliveryBaseURL: cfg.Remote.DeliveryBaseURL,
		KeepStaging:     cfg.KeepStaging,
	})
	return coord, staging, nil
}
