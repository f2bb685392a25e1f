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

// Package mapping derives canonical target paths for migrated assets.
package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 🗺️ AssetMapping maps a source reference to its target path. Every key maps
// to exactly one value; two distinct keys never map to the same value (the
// content hash suffix guarantees this).
type AssetMapping map[string]string

// 📁 Folder naming constants. The shadow folder marker makes per-page image
// namespaces invisible to sibling page listings.
const (
	ShadowMarker = "."
	MediaFolder  = "media"
)

// 🖼️ imageExts is the fixed set of extensions classified as images.
var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".tif": true, ".tiff": true, ".avif": true,
}

// 📄 PageContext locates a page within the site tree. Dir and ParentDir are
// forward-slash relative paths; both are empty for a page at the root.
type PageContext struct {
	PagePath  string // page file path relative to the site root
	Slug      string // sanitized page slug
	Dir       string // directory containing the page
	ParentDir string // parent of Dir
}

// 🏭 NewPageContext derives a page context from a page file path.
func NewPageContext(pagePath string) PageContext {
	clean := path.Clean(strings.ReplaceAll(pagePath, "\\", "/"))
	dir := path.Dir(clean)
	if dir == "." {
		dir = ""
	}
	parent := ""
	if dir != "" {
		parent = path.Dir(dir)
		if parent == "." {
			parent = ""
		}
	}
	base := strings.TrimSuffix(strings.TrimSuffix(path.Base(clean), path.Ext(clean)), ".")
	return PageContext{
		PagePath:  clean,
		Slug:      Sanitize(base),
		Dir:       dir,
		ParentDir: parent,
	}
}

// ShadowFolder returns the page's shadow folder path relative to the site root.
func (p PageContext) ShadowFolder() string {
	return path.Join(p.Dir, ShadowMarker+p.Slug)
}

// MediaFolder returns the page's shared-media folder path relative to the
// site root. It lives under the page's parent directory so sibling pages
// share one document namespace.
func (p PageContext) MediaFolder() string {
	return path.Join(p.ParentDir, MediaFolder)
}

// 🧭 Mapper derives canonical target paths. It is a pure value: mapping the
// same (source, page) pair twice always yields the same path.
type Mapper struct{}

// 🏭 NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// 🗺️ Map derives the canonical target path for a source reference. Images
// route to the page's shadow folder; everything else routes to the
// shared-media folder under the page's parent directory.
func (m *Mapper) Map(sourceRef string, page PageContext) string {
	name := TargetName(sourceRef)
	if m.IsImage(sourceRef) {
		return path.Join(page.ShadowFolder(), name)
	}
	return path.Join(page.MediaFolder(), name)
}

// 🖼️ IsImage classifies a reference by its extension.
func (m *Mapper) IsImage(sourceRef string) bool {
	return imageExts[strings.ToLower(refExt(sourceRef))]
}

// TargetName derives the sanitized file name for a source reference. The
// base name and extension are sanitized independently so the extension
// survives, and an 8 hex-character hash of the original reference is
// appended before the extension to avoid collisions between distinct
// sources that sanitize to the same base.
func TargetName(sourceRef string) string {
	base := refBase(sourceRef)
	ext := refExt(sourceRef)
	stem := strings.TrimSuffix(base, ext)

	sanitizedStem := Sanitize(stem)
	sanitizedExt := ""
	if ext != "" {
		sanitizedExt = "." + Sanitize(strings.TrimPrefix(ext, "."))
	}

	hash := RefHash(sourceRef)
	if sanitizedStem == "" {
		return hash + sanitizedExt
	}
	return sanitizedStem + "-" + hash + sanitizedExt
}

// 🔍 RefHash returns the first 8 hex characters of the SHA-256 of the
// original (unsanitized) reference.
func RefHash(sourceRef string) string {
	sum := sha256.Sum256([]byte(sourceRef))
	return hex.EncodeToString(sum[:])[:8]
}

// hyphenRuns collapses any run of characters outside [a-z0-9] to one hyphen.
var hyphenRuns = regexp.MustCompile(`[^a-z0-9]+`)

// 🧼 Sanitize canonicalizes a name fragment: percent-decode, lowercase,
// strip diacritics (NFD + combining mark removal), collapse disallowed runs
// to a single hyphen, trim leading/trailing hyphens.
func Sanitize(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	s = strings.ToLower(s)
	s = stripDiacritics(s)
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// stripDiacritics removes combining marks after NFD decomposition.
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// refBase extracts the file name portion of a reference, ignoring query and
// fragment when the reference parses as a URL.
func refBase(sourceRef string) string {
	if u, err := url.Parse(sourceRef); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(sourceRef)
}

// refExt extracts the extension of a reference's path portion.
func refExt(sourceRef string) string {
	return path.Ext(refBase(sourceRef))
}
