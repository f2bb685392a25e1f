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

package markup

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/walteh/webmigrate/pkg/mapping"
	"gitlab.com/tozd/go/errors"
)

// ✏️ Rewriter mutates page markup in place: mapped references point at the
// managed store, unmapped same-origin document links are normalized, and
// cross-origin references are left untouched.
type Rewriter struct {
	Mapping         mapping.AssetMapping
	Mapper          *mapping.Mapper
	ServeBaseURL    string // absolute content-serving root for images
	DeliveryBaseURL string // delivery-layer root for documents
	Origin          string // site origin, e.g. https://old.example.com
}

// Rewrite replaces every matched reference and returns the new markup plus
// the number of attribute values changed.
func (r *Rewriter) Rewrite(html []byte) ([]byte, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, 0, errors.Errorf("parsing markup: %w", err)
	}

	count := 0
	for _, sel := range refSelectors {
		attr := sel.attr
		isLink := attr == "href"
		doc.Find(sel.selector).Each(func(_ int, s *goquery.Selection) {
			val, ok := s.Attr(attr)
			if !ok {
				return
			}
			val = strings.TrimSpace(val)

			if target, mapped := r.Mapping[val]; mapped {
				s.SetAttr(attr, r.targetURL(val, target))
				count++
				return
			}

			// Unmapped same-origin hyperlinks become canonical document paths.
			if isLink && fetchable(val) && r.sameOrigin(val) {
				if normalized := NormalizeDocPath(val); normalized != val {
					s.SetAttr(attr, normalized)
					count++
				}
			}
		})
	}

	out, err := doc.Html()
	if err != nil {
		return nil, 0, errors.Errorf("rendering markup: %w", err)
	}
	return []byte(out), count, nil
}

// targetURL builds the rewritten value for a mapped reference. Images are
// served directly from the managed store; documents go through the delivery
// layer's publish path.
func (r *Rewriter) targetURL(sourceRef, targetPath string) string {
	if r.Mapper.IsImage(sourceRef) {
		return strings.TrimRight(r.ServeBaseURL, "/") + "/" + targetPath
	}
	return strings.TrimRight(r.DeliveryBaseURL, "/") + "/" + targetPath
}

// sameOrigin reports whether a reference is relative or shares the site origin.
func (r *Rewriter) sameOrigin(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	origin, err := url.Parse(r.Origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, origin.Host)
}

// 🧼 NormalizeDocPath canonicalizes a same-origin document path: decode,
// lowercase, strip .html/.htm, collapse disallowed characters to hyphens,
// collapse a trailing /index segment to the parent, strip the trailing
// slash (except root). The fragment survives; host and query do not.
func NormalizeDocPath(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if decoded, derr := url.PathUnescape(p); derr == nil {
		p = decoded
	}
	p = strings.ToLower(p)

	hadLeadingSlash := strings.HasPrefix(p, "/")
	segments := []string{}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		seg = strings.TrimSuffix(strings.TrimSuffix(seg, ".html"), ".htm")
		seg = mapping.Sanitize(seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	// A trailing index segment collapses to its parent.
	if n := len(segments); n > 0 && segments[n-1] == "index" {
		segments = segments[:n-1]
	}

	out := strings.Join(segments, "/")
	if hadLeadingSlash || (u.Scheme != "" && u.Host != "") {
		out = "/" + out
	}
	if out == "" {
		out = "/"
	}
	if out != "/" {
		out = strings.TrimRight(out, "/")
	}
	if u.Fragment != "" {
		out += "#" + u.Fragment
	}
	return out
}
