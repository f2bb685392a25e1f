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
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/webmigrate/pkg/log"
	"github.com/walteh/webmigrate/pkg/pipeline"
	"gitlab.com/tozd/go/errors"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "run the full migration for every configured page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadRunConfig(ctx)
			if err != nil {
				return err
			}

			level := zerolog.WarnLevel
			if debug {
				level = zerolog.DebugLevel
			}
			console := log.New(os.Stdout, level)
			console.Header(fmt.Sprintf("migrating %s", cfg))

			coord, staging, err := buildCoordinator(cfg, console)
			if err != nil {
				return err
			}

			rep, err := coord.Run(ctx, cfg.Pages)
			if err != nil {
				return err
			}

			if werr := pipeline.WriteReport(staging, cfg.ReportPath, rep); werr != nil {
				console.Warningf("writing run report: %s", werr)
			}

			pipeline.Summarize(console, rep)

			if !rep.OK {
				return errors.Errorf("migration finished with errors, full detail in %s", cfg.ReportPath)
			}
			return nil
		},
	}
}
