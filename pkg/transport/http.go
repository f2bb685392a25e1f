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

package transport

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// defaultUserAgent mimics a browser so origin servers that gate on UA
// still serve asset bytes.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// 🌐 HTTPFetcher fetches asset bytes over plain HTTP GET.
type HTTPFetcher struct {
	Client *http.Client
}

// 🏭 NewHTTPFetcher creates a fetcher backed by the given client, or
// http.DefaultClient when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "*/*")
	if origin := originOf(rawURL); origin != "" {
		req.Header.Set("Referer", origin)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errors.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading response body: %w", err)
	}

	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// originOf returns scheme://host for the URL, or "" when not derivable.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// 📤 HTTPUploader pushes files to the remote content store. Deep uploads
// stream a gzipped tarball of the subtree in a single call; single-file
// uploads PUT raw bytes. Both carry a bearer token.
type HTTPUploader struct {
	BaseURL         string
	Token           string
	MaxFilesPerCall int // per-call ceiling for deep uploads
	Client          *http.Client
}

// DefaultMaxFilesPerCall is the transport's default per-call file ceiling.
const DefaultMaxFilesPerCall = 4000

// 🏭 NewHTTPUploader creates an uploader for the given store.
func NewHTTPUploader(baseURL, token string, maxFilesPerCall int, client *http.Client) *HTTPUploader {
	if client == nil {
		client = http.DefaultClient
	}
	if maxFilesPerCall <= 0 {
		maxFilesPerCall = DefaultMaxFilesPerCall
	}
	return &HTTPUploader{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		Token:           token,
		MaxFilesPerCall: maxFilesPerCall,
		Client:          client,
	}
}

// UploadTree implements Uploader. The ceiling is enforced before any bytes
// move, and a 413 from the store is mapped to the same signal so either
// side can reject an oversized call.
func (u *HTTPUploader) UploadTree(ctx context.Context, localDir string, remotePath string) error {
	count, err := countFiles(localDir)
	if err != nil {
		return errors.Errorf("counting files in %s: %w", localDir, err)
	}
	if count > u.MaxFilesPerCall {
		return &CapacityError{Path: localDir, Files: count, Limit: u.MaxFilesPerCall}
	}

	zerolog.Ctx(ctx).Debug().
		Str("dir", localDir).
		Str("remote", remotePath).
		Int("files", count).
		Msg("deep uploading subtree")

	var buf bytes.Buffer
	if err := tarDir(localDir, &buf); err != nil {
		return errors.Errorf("archiving %s: %w", localDir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.remoteURL(remotePath), &buf)
	if err != nil {
		return errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.Token)
	req.Header.Set("Content-Type", "application/x-tar+gzip")

	return u.do(req, remotePath, count)
}

// UploadFile implements Uploader.
func (u *HTTPUploader) UploadFile(ctx context.Context, localPath string, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.remoteURL(remotePath), f)
	if err != nil {
		return errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.Token)
	req.Header.Set("Content-Type", "application/octet-stream")

	return u.do(req, remotePath, 1)
}

// do runs the request and maps response statuses onto the error taxonomy.
func (u *HTTPUploader) do(req *http.Request, remotePath string, files int) error {
	resp, err := u.Client.Do(req)
	if err != nil {
		return errors.Errorf("uploading %s: %w", remotePath, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return &CapacityError{Path: remotePath, Files: files, Limit: u.MaxFilesPerCall}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return nil
}

// remoteURL joins the store base URL with a staging-relative path.
func (u *HTTPUploader) remoteURL(remotePath string) string {
	remotePath = strings.TrimLeft(path.Clean("/"+remotePath), "/")
	if remotePath == "" || remotePath == "." {
		return u.BaseURL
	}
	return u.BaseURL + "/" + remotePath
}

// countFiles counts regular files under dir, recursively.
func countFiles(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}

// tarDir writes a gzipped tarball of dir to w, with paths relative to dir.
func tarDir(dir string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr := &tar.Header{
			Name: filepath.ToSlash(rel),
			Mode: 0644,
			Size: info.Size(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
