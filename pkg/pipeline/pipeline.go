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

// Package pipeline coordinates the per-page migration sequence: read,
// extract, map, download, upload, rewrite, persist, clean up. Pages run
// strictly one after another; concurrency lives inside the download and
// upload stages.
package pipeline

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/webmigrate/pkg/download"
	"github.com/walteh/webmigrate/pkg/log"
	"github.com/walteh/webmigrate/pkg/mapping"
	"github.com/walteh/webmigrate/pkg/markup"
	"github.com/walteh/webmigrate/pkg/stage"
	"github.com/walteh/webmigrate/pkg/transport"
	"github.com/walteh/webmigrate/pkg/upload"
	"gitlab.com/tozd/go/errors"
)

// 🔧 Options configures a migration run.
type Options struct {
	Origin          string   // site origin, e.g. https://old.example.com
	Allow           []string // reference allow-list (exact values or doublestar globs)
	ServeBaseURL    string   // content-serving root substituted for image references
	DeliveryBaseURL string   // delivery-layer root substituted for document references
	KeepStaging     bool     // leave staged subtrees on disk after upload
}

// 📊 PageResult records how one page settled. A page failure never aborts
// the run; only failing to read the page file itself does.
type PageResult struct {
	Page         string             `json:"page"`
	Matched      int                `json:"matched"`
	Fulfilled    int                `json:"fulfilled"`
	Rejected     int                `json:"rejected"`
	Cached       int                `json:"cached"`
	Rewritten    int                `json:"rewritten"`
	HTMLUploaded bool               `json:"html_uploaded"`
	Upload       *upload.Report     `json:"upload,omitempty"`
	Outcomes     []download.Outcome `json:"outcomes,omitempty"`
	Err          string             `json:"error,omitempty"`
}

// 📊 RunReport aggregates a whole migration run.
type RunReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Pages      []PageResult `json:"pages"`
	OK         bool         `json:"ok"`
}

// 🎮 Coordinator drives the migration of a page list.
type Coordinator struct {
	mapper    *mapping.Mapper
	pages     *stage.Manager // site tree holding the page files
	staging   *stage.Manager // staging tree mirroring the remote layout
	downloads *download.Orchestrator
	uploads   *upload.Orchestrator
	console   *log.Logger // may be nil
	opts      Options
}

// 🏭 New creates a pipeline coordinator. console may be nil for quiet runs.
func New(pages, staging *stage.Manager, downloads *download.Orchestrator, uploads *upload.Orchestrator, console *log.Logger, opts Options) *Coordinator {
	return &Coordinator{
		mapper:    mapping.NewMapper(),
		pages:     pages,
		staging:   staging,
		downloads: downloads,
		uploads:   uploads,
		console:   console,
		opts:      opts,
	}
}

// ▶️ Run migrates the given pages in order. Failing to read a page file
// aborts the run; every other failure is recorded in the report and the
// run continues with the next page.
func (c *Coordinator) Run(ctx context.Context, pagePaths []string) (*RunReport, error) {
	rep := &RunReport{StartedAt: time.Now()}

	for i, page := range pagePaths {
		result, err := c.processPage(ctx, page, i+1, len(pagePaths))
		if err != nil {
			rep.FinishedAt = time.Now()
			return rep, errors.Errorf("reading page %s: %w", page, err)
		}
		rep.Pages = append(rep.Pages, *result)
	}

	rep.FinishedAt = time.Now()
	rep.OK = true
	for _, p := range rep.Pages {
		if p.Err != "" || (p.Upload != nil && !p.Upload.OK) || p.Rejected > 0 {
			rep.OK = false
			break
		}
	}
	return rep, nil
}

// processPage runs the full stage sequence for one page. The returned error
// is non-nil only when the page file itself cannot be read.
func (c *Coordinator) processPage(ctx context.Context, page string, index, total int) (*PageResult, error) {
	logger := zerolog.Ctx(ctx)
	result := &PageResult{Page: page}

	html, err := c.pages.ReadFile(page)
	if err != nil {
		return nil, &transport.ValidationError{Path: page, Reason: err.Error()}
	}

	refs, err := markup.ExtractRefs(html)
	if err != nil {
		result.Err = errors.Errorf("extracting references: %w", err).Error()
		return result, nil
	}

	matched := c.filterAllowed(refs)
	result.Matched = len(matched)

	if c.console != nil {
		c.console.StartPageOperation(log.PageOperation{Path: page, Index: index, Total: total, Assets: len(matched)})
		defer c.console.EndPageOperation()
	}

	pc := mapping.NewPageContext(page)

	// Mapping keys are resolved absolute URLs for fetching. A page may hold
	// several literal forms of the same asset (relative and absolute), so
	// every literal of a resolved URL is kept for the rewrite stage.
	fetchMap := mapping.AssetMapping{}
	literalsOf := map[string][]string{}
	for _, ref := range matched {
		resolved := c.resolveRef(ref, pc)
		if _, ok := fetchMap[resolved]; !ok {
			fetchMap[resolved] = c.mapper.Map(ref, pc)
		}
		literalsOf[resolved] = append(literalsOf[resolved], ref)
	}

	outcomes := c.downloads.Download(ctx, fetchMap)
	result.Outcomes = outcomes

	// Only fulfilled entries stay in the rewrite mapping, under their final
	// target paths: normalization may have changed the extension. Counters
	// track literals, so Fulfilled+Rejected always sums to Matched.
	rewriteMap := mapping.AssetMapping{}
	for _, out := range outcomes {
		for _, literal := range literalsOf[out.Source] {
			c.logOutcome(literal, out)
			if !out.Fulfilled {
				result.Rejected++
				continue
			}
			result.Fulfilled++
			if out.Cached {
				result.Cached++
			}
			rewriteMap[literal] = out.TargetPath
		}
	}

	result.Upload = c.uploadStaged(ctx, pc)

	rw := &markup.Rewriter{
		Mapping:         rewriteMap,
		Mapper:          c.mapper,
		ServeBaseURL:    c.opts.ServeBaseURL,
		DeliveryBaseURL: c.opts.DeliveryBaseURL,
		Origin:          c.opts.Origin,
	}
	rewritten, count, err := rw.Rewrite(html)
	if err != nil {
		result.Err = errors.Errorf("rewriting page: %w", err).Error()
		return result, nil
	}
	result.Rewritten = count

	if err := c.pages.WriteFileAtomic(page, rewritten); err != nil {
		result.Err = errors.Errorf("persisting rewritten page: %w", err).Error()
		return result, nil
	}

	if err := c.uploads.UploadOne(ctx, c.pages.Abs(page), page); err != nil {
		result.Err = err.Error()
		return result, nil
	}
	result.HTMLUploaded = true

	if !c.opts.KeepStaging && result.Upload.OK {
		c.cleanup(ctx, pc)
	}

	logger.Info().
		Str("page", page).
		Int("matched", result.Matched).
		Int("fulfilled", result.Fulfilled).
		Int("rejected", result.Rejected).
		Msg("page migrated")
	return result, nil
}

// uploadStaged pushes the page's staged subtrees (the image shadow folder
// and the shared media folder) to the remote store.
func (c *Coordinator) uploadStaged(ctx context.Context, pc mapping.PageContext) *upload.Report {
	rep := &upload.Report{OK: true}
	for _, dir := range []string{pc.ShadowFolder(), pc.MediaFolder()} {
		exists, err := c.staging.FileExists(dir)
		if err != nil || !exists {
			continue
		}
		rep.Merge(c.uploads.Upload(ctx, dir))
	}
	return rep
}

// cleanup removes the page's staged subtrees after a clean upload.
func (c *Coordinator) cleanup(ctx context.Context, pc mapping.PageContext) {
	for _, dir := range []string{pc.ShadowFolder(), pc.MediaFolder()} {
		if err := c.staging.RemoveDir(dir); err != nil {
			zerolog.Ctx(ctx).Warn().Str("dir", dir).Err(err).Msg("staging cleanup failed")
		}
	}
}

// filterAllowed selects the references to migrate. Patterns match the
// literal reference or its URL path, exactly or as a doublestar glob. An
// empty allow-list falls back to extension-based selection so document
// hyperlinks stay with the rewrite stage instead of the asset pipeline.
func (c *Coordinator) filterAllowed(refs []string) []string {
	var out []string
	for _, ref := range refs {
		if c.allowed(ref) {
			out = append(out, ref)
		}
	}
	return out
}

func (c *Coordinator) allowed(ref string) bool {
	if len(c.opts.Allow) == 0 {
		return c.defaultAsset(ref)
	}
	candidates := []string{ref}
	if u, err := url.Parse(ref); err == nil && u.Path != "" && u.Path != ref {
		candidates = append(candidates, u.Path)
	}
	for _, pattern := range c.opts.Allow {
		for _, cand := range candidates {
			if pattern == cand {
				return true
			}
			if ok, err := doublestar.Match(pattern, cand); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// defaultAsset treats any same-origin reference with a non-page file
// extension as an asset when no allow-list is configured. References
// already rooted at the migrated store stay untouched, so re-running over
// an already-rewritten page selects nothing.
func (c *Coordinator) defaultAsset(ref string) bool {
	for _, base := range []string{c.opts.ServeBaseURL, c.opts.DeliveryBaseURL} {
		if base != "" && strings.HasPrefix(ref, strings.TrimRight(base, "/")+"/") {
			return false
		}
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if u.Host != "" {
		origin, oerr := url.Parse(c.opts.Origin)
		if oerr != nil || !strings.EqualFold(u.Host, origin.Host) {
			return false
		}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case "", ".html", ".htm", ".php", ".asp", ".aspx":
		return false
	}
	return true
}

// resolveRef turns a page-relative reference into an absolute URL against
// the site origin, using the page's own location as the base.
func (c *Coordinator) resolveRef(ref string, pc mapping.PageContext) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	base, err := url.Parse(strings.TrimRight(c.opts.Origin, "/") + "/" + pc.PagePath)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

// logOutcome mirrors one download outcome onto the console.
func (c *Coordinator) logOutcome(literal string, out download.Outcome) {
	if c.console == nil {
		return
	}
	kind := "document"
	if c.mapper.IsImage(literal) {
		kind = "image"
	}
	c.console.LogAssetOperation(log.AssetOperation{
		Source:     literal,
		TargetPath: out.TargetPath,
		Kind:       kind,
		Fulfilled:  out.Fulfilled,
		Cached:     out.Cached,
		Reason:     out.Reason,
	})
	if out.Warning != "" {
		c.console.Warningf("%s: %s", literal, out.Warning)
	}
}
