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

// Package transport defines the network surfaces the migration pipeline
// talks through, plus the error taxonomy shared across orchestrators.
package transport

import (
	"context"
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// 🔍 Fetcher retrieves remote asset bytes.
type Fetcher interface {
	// Fetch performs one GET of the given URL. A 404 is reported as
	// ErrNotFound; other non-2xx statuses as *StatusError.
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// 📦 FetchResult is the outcome of a successful fetch.
type FetchResult struct {
	Body        []byte
	ContentType string // raw Content-Type header, may be empty
}

// 📤 Uploader pushes staged bytes to the remote content store.
type Uploader interface {
	// UploadTree performs one deep (bulk) upload of an entire local
	// subtree. When the subtree holds more files than the per-call
	// ceiling it fails with *CapacityError without transferring anything.
	UploadTree(ctx context.Context, localDir string, remotePath string) error

	// UploadFile uploads a single file.
	UploadFile(ctx context.Context, localPath string, remotePath string) error
}

// 🚫 ErrNotFound marks a 404 response: the asset is permanently gone and
// must never be retried.
var ErrNotFound = errors.New("remote returned not found")

// 📛 StatusError reports an unexpected HTTP status. 5xx statuses are
// transient and eligible for retry.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500
}

// 📛 CapacityError is the distinguished capacity-exceeded signal: the deep
// upload was rejected because the subtree holds more files than the
// transport's per-call ceiling. It triggers the split fallback and must not
// cause a retry of the same call.
type CapacityError struct {
	Path  string
	Files int
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("upload of %s exceeds capacity: %d files over limit %d", e.Path, e.Files, e.Limit)
}

// IsCapacityExceeded reports whether err carries the capacity-exceeded signal.
func IsCapacityExceeded(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// 📛 ValidationError marks a fatal input problem that aborts the whole run.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Path, e.Reason)
}

// IsValidation reports whether err is fatal to the run.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
