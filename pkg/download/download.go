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

// Package download fetches mapped assets into local staging with bounded
// concurrency, retry with exponential backoff, and optional image
// normalization.
package download

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/walteh/webmigrate/pkg/mapping"
	"github.com/walteh/webmigrate/pkg/transport"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// 🔧 Options tunes the orchestrator. Zero values take the documented defaults.
type Options struct {
	MaxRetries      int           // total attempts per entry (default 3)
	RetryDelay      time.Duration // backoff base; attempt k waits base * 2^(k-1) (default 5s)
	Concurrency     int           // entries in flight per batch (default 10)
	NormalizeImages bool          // re-encode convertible images to the canonical format
	Compress        bool          // recompress files above the size ceiling
	UseCache        bool          // skip entries whose target already exists on disk
	SizeCeiling     int64         // recompression threshold in bytes (default 20 MB)
	MaxDimension    int           // downscale bound during recompression (default 4000 px)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.Concurrency < 1 {
		o.Concurrency = 10
	}
	if o.SizeCeiling <= 0 {
		o.SizeCeiling = 20 << 20
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = 4000
	}
	return o
}

// 📦 Outcome records how one mapping entry settled. Exactly one outcome is
// produced per entry; a rejection never aborts sibling entries.
type Outcome struct {
	Source     string
	TargetPath string // final target path, extension may differ from the mapped one
	Fulfilled  bool
	Cached     bool   // fulfilled without a network call via the resume cache
	Reason     string // rejection reason, empty when fulfilled
	Warning    string // non-fatal oddity (ambiguous classification, failed conversion)
}

// 💾 FS is the staging surface the orchestrator writes through.
type FS interface {
	WriteFileAtomic(path string, content []byte) error
	FileExists(path string) (bool, error)
}

// 🎞️ Codec re-encodes image bytes. Conversion failures are never fatal.
type Codec interface {
	// Convert re-encodes to the canonical format, returning new bytes and
	// the canonical extension.
	Convert(data []byte) ([]byte, string, error)
	// Recompress performs one format-preserving pass, downscaling above
	// maxDim. The caller keeps whichever output is smaller.
	Recompress(data []byte, ext string, maxDim int) ([]byte, error)
}

// 🎮 Orchestrator downloads mapped assets into staging.
type Orchestrator struct {
	fetcher transport.Fetcher
	fs      FS
	codec   Codec
	opts    Options
}

// 🏭 New creates a download orchestrator. codec may be nil when image
// normalization and compression are disabled.
func New(fetcher transport.Fetcher, fs FS, codec Codec, opts Options) *Orchestrator {
	return &Orchestrator{
		fetcher: fetcher,
		fs:      fs,
		codec:   codec,
		opts:    opts.withDefaults(),
	}
}

// 📥 Download fetches every mapping entry into staging. Entries run in
// fixed-size concurrency batches: batch k+1 does not start until batch k
// fully settles, bounding load on the origin server. The outcome slice has
// the same cardinality as the mapping.
func (o *Orchestrator) Download(ctx context.Context, m mapping.AssetMapping) []Outcome {
	sources := make([]string, 0, len(m))
	for src := range m {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	outcomes := make([]Outcome, len(sources))
	for start := 0; start < len(sources); start += o.opts.Concurrency {
		end := start + o.opts.Concurrency
		if end > len(sources) {
			end = len(sources)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i] = o.fetchOne(ctx, sources[i], m[sources[i]])
				return nil
			})
		}
		g.Wait()
	}
	return outcomes
}

// fetchOne settles a single mapping entry. All failure modes are captured
// into the outcome; nothing propagates to sibling entries.
func (o *Orchestrator) fetchOne(ctx context.Context, source, target string) Outcome {
	logger := zerolog.Ctx(ctx)

	if o.opts.UseCache {
		if exists, err := o.fs.FileExists(target); err == nil && exists {
			logger.Debug().Str("target", target).Msg("cache hit, skipping download")
			return Outcome{Source: source, TargetPath: target, Fulfilled: true, Cached: true}
		}
	}

	res, err := o.fetchWithRetry(ctx, source)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			logger.Warn().Str("source", source).Msg("asset not found at origin, skipping")
			return Outcome{Source: source, TargetPath: target, Reason: "not found at origin"}
		}
		return Outcome{Source: source, TargetPath: target, Reason: err.Error()}
	}

	data := res.Body
	target, warning := o.classify(target, res.ContentType)

	if o.opts.NormalizeImages && o.convertible(target, res.ContentType) {
		converted, ext, cerr := o.codec.Convert(data)
		if cerr != nil {
			// Conversion failure must not abort the download.
			logger.Warn().Str("source", source).Err(cerr).Msg("image conversion failed, storing original bytes")
			if warning == "" {
				warning = "image conversion failed: " + cerr.Error()
			}
		} else {
			data = converted
			target = forceExt(target, ext)
		}
	}

	if err := o.fs.WriteFileAtomic(target, data); err != nil {
		return Outcome{Source: source, TargetPath: target, Reason: errors.Errorf("writing staged file: %w", err).Error()}
	}

	if o.opts.Compress && int64(len(data)) > o.opts.SizeCeiling && o.codec != nil {
		if smaller := o.recompress(ctx, data, target); smaller != nil {
			if err := o.fs.WriteFileAtomic(target, smaller); err != nil {
				logger.Warn().Str("target", target).Err(err).Msg("rewriting recompressed file failed, keeping original")
			}
		}
	}

	return Outcome{Source: source, TargetPath: target, Fulfilled: true, Warning: warning}
}

// fetchWithRetry performs the GET with exponential backoff. A 404 is
// permanent and aborts immediately; everything else is transient.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, source string) (*transport.FetchResult, error) {
	var res *transport.FetchResult
	backoff := retry.WithMaxRetries(uint64(o.opts.MaxRetries-1), retry.NewExponential(o.opts.RetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := o.fetcher.Fetch(ctx, source)
		if err != nil {
			if errors.Is(err, transport.ErrNotFound) {
				return err
			}
			zerolog.Ctx(ctx).Debug().Str("source", source).Err(err).Msg("transient fetch failure, will retry")
			return retry.RetryableError(err)
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// classify settles the target's extension: Content-Type header first, the
// path's existing extension as fallback. An entry with neither gets a .bin
// extension and a warning rather than landing on disk unclassified.
func (o *Orchestrator) classify(target, contentType string) (string, string) {
	inferred := extForContentType(contentType)
	existing := path.Ext(target)

	switch {
	case existing != "":
		return target, ""
	case inferred != "":
		return target + inferred, ""
	default:
		return target + ".bin", "no content type and no extension, stored as .bin"
	}
}

// convertible reports whether normalization applies: the content is an
// image, not already in a protected format, and a codec is available.
func (o *Orchestrator) convertible(target, contentType string) bool {
	if o.codec == nil {
		return false
	}
	ext := strings.ToLower(path.Ext(target))
	if protectedExts[ext] {
		return false
	}
	return isImageContentType(contentType) || imageLikeExt(ext)
}

// recompress runs one bounded best-effort pass and returns the result only
// when it is smaller than the input.
func (o *Orchestrator) recompress(ctx context.Context, data []byte, target string) []byte {
	out, err := o.codec.Recompress(data, path.Ext(target), o.opts.MaxDimension)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Str("target", target).Err(err).Msg("recompression pass failed, keeping original")
		return nil
	}
	if len(out) >= len(data) {
		return nil
	}
	zerolog.Ctx(ctx).Debug().
		Str("target", target).
		Int("before", len(data)).
		Int("after", len(out)).
		Msg("recompressed oversized file")
	return out
}

// forceExt swaps the extension of a target path.
func forceExt(target, ext string) string {
	return strings.TrimSuffix(target, path.Ext(target)) + ext
}
