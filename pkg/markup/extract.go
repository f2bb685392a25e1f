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

// Package markup parses page markup, extracts asset references, and
// rewrites them against an asset mapping.
package markup

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gitlab.com/tozd/go/errors"
)

// refSelectors pairs a CSS selector with the attribute holding the reference.
var refSelectors = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"area[href]", "href"},
	{"img[src]", "src"},
	{"source[src]", "src"},
	{"embed[src]", "src"},
	{"object[data]", "data"},
}

// 🔍 ExtractRefs collects hyperlink targets and embedded-resource sources
// from page markup, excluding fragment-only references and non-fetchable
// schemes. The result is deduplicated in document order.
func ExtractRefs(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, errors.Errorf("parsing markup: %w", err)
	}

	var refs []string
	seen := map[string]bool{}
	for _, sel := range refSelectors {
		doc.Find(sel.selector).Each(func(_ int, s *goquery.Selection) {
			val, ok := s.Attr(sel.attr)
			if !ok {
				return
			}
			val = strings.TrimSpace(val)
			if !fetchable(val) || seen[val] {
				return
			}
			seen[val] = true
			refs = append(refs, val)
		})
	}
	return refs, nil
}

// fetchable reports whether a reference points at retrievable content.
func fetchable(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}
