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

package pipeline

import (
	"context"

	"github.com/walteh/webmigrate/pkg/mapping"
	"github.com/walteh/webmigrate/pkg/markup"
	"github.com/walteh/webmigrate/pkg/transport"
	"gitlab.com/tozd/go/errors"
)

// 📋 PlanEntry previews one asset's derived target without any network work.
type PlanEntry struct {
	Page   string `json:"page"`
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"` // image | document
}

// 📋 Plan derives the full asset mapping for the given pages without
// downloading, uploading, or rewriting anything. Path derivation is pure,
// so the plan shows exactly the targets a real run would use.
func (c *Coordinator) Plan(ctx context.Context, pagePaths []string) ([]PlanEntry, error) {
	var entries []PlanEntry

	for _, page := range pagePaths {
		html, err := c.pages.ReadFile(page)
		if err != nil {
			return nil, &transport.ValidationError{Path: page, Reason: err.Error()}
		}

		refs, err := markup.ExtractRefs(html)
		if err != nil {
			return nil, errors.Errorf("extracting references from %s: %w", page, err)
		}

		pc := mapping.NewPageContext(page)
		for _, ref := range c.filterAllowed(refs) {
			kind := "document"
			if c.mapper.IsImage(ref) {
				kind = "image"
			}
			entries = append(entries, PlanEntry{
				Page:   page,
				Source: ref,
				Target: c.mapper.Map(ref, pc),
				Kind:   kind,
			})
		}
	}
	return entries, nil
}
