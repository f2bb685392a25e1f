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

// Package upload pushes staged subtrees to the remote store, splitting
// adaptively when the transport rejects an oversized deep upload.
package upload

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/walteh/webmigrate/pkg/progress"
	"github.com/walteh/webmigrate/pkg/transport"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// Error list tags.
const (
	ErrTypeFilesystem = "filesystem"
	ErrTypeFallback   = "fallback-parent-files"
)

// 🔧 Options tunes the orchestrator. Zero values take the documented defaults.
type Options struct {
	MaxRetries       int           // total attempts per call (default 3)
	RetryDelay       time.Duration // backoff base (default 5s)
	BatchSize        int           // files per fallback batch (default 200)
	BatchConcurrency int           // simultaneous transfers within a batch (default 5)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.BatchSize < 1 {
		o.BatchSize = 200
	}
	if o.BatchConcurrency < 1 {
		o.BatchConcurrency = 5
	}
	return o
}

// 📦 BatchResult records one flat-fallback batch.
type BatchResult struct {
	Batch int      `json:"batch"`
	Files []string `json:"files"`
	Err   string   `json:"error,omitempty"`
}

// 📛 UploadError is one structured entry in the report's error list.
type UploadError struct {
	Type    string `json:"type"` // filesystem | fallback-parent-files
	Path    string `json:"path"`
	Message string `json:"message"`
}

// 📊 Report aggregates a composite upload. OK is true iff Errors is empty.
type Report struct {
	OK             bool          `json:"ok"`
	FilesystemRuns []string      `json:"filesystem_runs"` // subtrees deep-uploaded successfully
	FallbackRuns   []BatchResult `json:"fallback_runs"`
	Errors         []UploadError `json:"errors"`
}

// Merge folds another report into this one and recomputes OK.
func (r *Report) Merge(other *Report) {
	r.FilesystemRuns = append(r.FilesystemRuns, other.FilesystemRuns...)
	r.FallbackRuns = append(r.FallbackRuns, other.FallbackRuns...)
	r.Errors = append(r.Errors, other.Errors...)
	r.OK = len(r.Errors) == 0
}

// 💾 FS is the staging surface the orchestrator reads through.
type FS interface {
	TreeFS
	// Abs resolves a staging-relative path to an absolute one.
	Abs(path string) string
}

// 🎮 Orchestrator pushes staged trees through the bulk transport, falling
// back to per-file batches when a directory cannot fit in one call.
type Orchestrator struct {
	uploader transport.Uploader
	fs       FS
	obs      progress.Observer
	opts     Options
}

// 🏭 New creates an upload orchestrator. obs may be nil.
func New(uploader transport.Uploader, fs FS, obs progress.Observer, opts Options) *Orchestrator {
	if obs == nil {
		obs = progress.Nop{}
	}
	return &Orchestrator{
		uploader: uploader,
		fs:       fs,
		obs:      obs,
		opts:     opts.withDefaults(),
	}
}

// 📤 Upload pushes the staging subtree at root to the remote store.
// Failures are captured into the report; nothing aborts sibling work.
func (o *Orchestrator) Upload(ctx context.Context, root string) *Report {
	rep := &Report{}

	tree, err := BuildTree(o.fs, root)
	if err != nil {
		rep.Errors = append(rep.Errors, UploadError{Type: ErrTypeFilesystem, Path: root, Message: err.Error()})
		return rep
	}

	o.uploadNode(ctx, tree, rep)
	rep.OK = len(rep.Errors) == 0
	return rep
}

// uploadNode attempts one deep upload of the node's subtree. On the
// capacity-exceeded signal the same rule re-applies to each child, and
// loose files fall through to the flat per-file path. The failing call is
// never retried as-is.
func (o *Orchestrator) uploadNode(ctx context.Context, n *DirNode, rep *Report) {
	logger := zerolog.Ctx(ctx)

	err := o.deepUpload(ctx, n.Path)
	if err == nil {
		logger.Debug().Str("dir", n.Path).Int("files", n.TotalFiles()).Msg("deep upload succeeded")
		rep.FilesystemRuns = append(rep.FilesystemRuns, n.Path)
		o.obs.Notify(progress.Event{Kind: progress.KindDone, Path: n.Path})
		return
	}

	if !transport.IsCapacityExceeded(err) {
		rep.Errors = append(rep.Errors, UploadError{Type: ErrTypeFilesystem, Path: n.Path, Message: err.Error()})
		o.obs.Notify(progress.Event{Kind: progress.KindError, Path: n.Path, Err: err})
		return
	}

	logger.Info().
		Str("dir", n.Path).
		Int("files", n.TotalFiles()).
		Msg("capacity exceeded, splitting into subdirectory uploads")

	for _, child := range n.Children {
		o.uploadNode(ctx, child, rep)
	}

	// Loose files cannot be isolated by subdirectory splitting; they go
	// through the slower per-file transport path.
	if len(n.DirectFiles) > 0 {
		o.fallbackFiles(ctx, n, rep)
	}
}

// fallbackFiles uploads a directory's loose files in fixed-size batches
// with bounded per-batch concurrency.
func (o *Orchestrator) fallbackFiles(ctx context.Context, n *DirNode, rep *Report) {
	for start := 0; start < len(n.DirectFiles); start += o.opts.BatchSize {
		end := start + o.opts.BatchSize
		if end > len(n.DirectFiles) {
			end = len(n.DirectFiles)
		}
		batch := n.DirectFiles[start:end]
		batchNum := len(rep.FallbackRuns) + 1

		var g errgroup.Group
		g.SetLimit(o.opts.BatchConcurrency)

		errCh := make(chan UploadError, len(batch))
		for _, file := range batch {
			file := file
			g.Go(func() error {
				o.obs.Notify(progress.Event{Kind: progress.KindStart, Path: file})
				if err := o.fileUpload(ctx, o.fs.Abs(file), file); err != nil {
					errCh <- UploadError{Type: ErrTypeFallback, Path: file, Message: err.Error()}
					o.obs.Notify(progress.Event{Kind: progress.KindError, Path: file, Err: err})
					return nil
				}
				o.obs.Notify(progress.Event{Kind: progress.KindDone, Path: file})
				return nil
			})
		}
		g.Wait()
		close(errCh)

		result := BatchResult{Batch: batchNum, Files: batch}
		for ue := range errCh {
			rep.Errors = append(rep.Errors, ue)
			if result.Err == "" {
				result.Err = ue.Message
			}
		}
		rep.FallbackRuns = append(rep.FallbackRuns, result)
	}
}

// deepUpload performs one bulk call with retry on transient failures. The
// capacity signal is permanent: the split handles it, not a retry.
func (o *Orchestrator) deepUpload(ctx context.Context, dir string) error {
	return o.withRetry(ctx, func(ctx context.Context) error {
		return o.uploader.UploadTree(ctx, o.fs.Abs(dir), dir)
	})
}

// fileUpload performs one single-file call with the same retry policy as
// downloads.
func (o *Orchestrator) fileUpload(ctx context.Context, localPath, remotePath string) error {
	return o.withRetry(ctx, func(ctx context.Context) error {
		return o.uploader.UploadFile(ctx, localPath, remotePath)
	})
}

// UploadOne pushes a single file outside the staging tree (the rewritten
// page itself) with the standard retry policy.
func (o *Orchestrator) UploadOne(ctx context.Context, localPath, remotePath string) error {
	if err := o.fileUpload(ctx, localPath, remotePath); err != nil {
		return errors.Errorf("uploading %s: %w", remotePath, err)
	}
	return nil
}

// withRetry applies exponential backoff, treating the capacity signal as
// permanent and everything else as transient.
func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(o.opts.MaxRetries-1), retry.NewExponential(o.opts.RetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if transport.IsCapacityExceeded(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}
