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
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/webmigrate/pkg/log"
	"gitlab.com/tozd/go/errors"
)

func newPlanCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "preview the derived asset mapping without touching the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadRunConfig(ctx)
			if err != nil {
				return err
			}

			console := log.New(os.Stdout, zerolog.WarnLevel)
			coord, _, err := buildCoordinator(cfg, nil)
			if err != nil {
				return err
			}

			entries, err := coord.Plan(ctx, cfg.Pages)
			if err != nil {
				return err
			}

			if asJSON {
				data, merr := json.MarshalIndent(entries, "", "  ")
				if merr != nil {
					return errors.Errorf("marshaling plan: %w", merr)
				}
				fmt.Fprintln(os.Stdout, string(data))
				return nil
			}

			console.Header(fmt.Sprintf("plan for %s", cfg))
			for _, e := range entries {
				console.LogAssetOperation(log.AssetOperation{
					Source:     e.Source,
					TargetPath: e.Target,
					Kind:       e.Kind,
					Fulfilled:  true,
				})
			}
			console.Infof("%d assets across %d pages", len(entries), len(cfg.Pages))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the plan as JSON")
	return cmd
}
