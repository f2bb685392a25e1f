package upload

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/webmigrate/pkg/progress"
	"github.com/walteh/webmigrate/pkg/transport"
	"gitlab.com/tozd/go/errors"
)

// fakeFS serves a staging tree from a list of file paths.
type fakeFS struct {
	files []string
}

func (f *fakeFS) Abs(p string) string { return p }

func (f *fakeFS) ListDir(dir string) ([]string, []string, error) {
	dirSet := map[string]bool{}
	var files []string
	prefix := dir
	if prefix != "" {
		prefix += "/"
	}
	for _, file := range f.files {
		if !strings.HasPrefix(file, prefix) {
			continue
		}
		rest := strings.TrimPrefix(file, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			dirSet[prefix+rest[:i]] = true
		} else {
			files = append(files, file)
		}
	}
	var dirs []string
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

func (f *fakeFS) countUnder(dir string) int {
	prefix := dir
	if prefix != "" {
		prefix += "/"
	}
	n := 0
	for _, file := range f.files {
		if strings.HasPrefix(file, prefix) {
			n++
		}
	}
	return n
}

// fakeUploader enforces a per-call ceiling and scripts failures.
type fakeUploader struct {
	mu        sync.Mutex
	fs        *fakeFS
	limit     int
	treeCalls map[string]int
	fileCalls map[string]int
	treeErrs  map[string]error // permanent per-dir failures
	fileFails map[string]int   // transient failures before success
}

func newFakeUploader(fs *fakeFS, limit int) *fakeUploader {
	return &fakeUploader{
		fs:        fs,
		limit:     limit,
		treeCalls: map[string]int{},
		fileCalls: map[string]int{},
		treeErrs:  map[string]error{},
		fileFails: map[string]int{},
	}
}

func (u *fakeUploader) UploadTree(ctx context.Context, localDir, remotePath string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.treeCalls[remotePath]++
	if err, ok := u.treeErrs[remotePath]; ok {
		return err
	}
	if count := u.fs.countUnder(localDir); count > u.limit {
		return &transport.CapacityError{Path: remotePath, Files: count, Limit: u.limit}
	}
	return nil
}

func (u *fakeUploader) UploadFile(ctx context.Context, localPath, remotePath string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fileCalls[remotePath]++
	if u.fileFails[remotePath] > 0 {
		u.fileFails[remotePath]--
		return &transport.StatusError{URL: remotePath, StatusCode: 502}
	}
	return nil
}

func fastOpts() Options {
	return Options{MaxRetries: 3, RetryDelay: time.Millisecond, BatchSize: 200, BatchConcurrency: 5}
}

func treeFiles(dir string, n int) []string {
	files := make([]string, n)
	for i := range files {
		files[i] = path.Join(dir, string(rune('a'+i%26))+strings.Repeat("x", i/26)+".png")
	}
	return files
}

// 🧪 TestDeepUploadFitsInOneCall tests the happy path
func TestDeepUploadFitsInOneCall(t *testing.T) {
	fs := &fakeFS{files: treeFiles("pages/.home", 5)}
	up := newFakeUploader(fs, 20)

	rep := New(up, fs, nil, fastOpts()).Upload(context.Background(), "")

	assert.True(t, rep.OK)
	assert.Equal(t, []string{""}, rep.FilesystemRuns)
	assert.Empty(t, rep.FallbackRuns)
	assert.Empty(t, rep.Errors)
}

// 🧪 TestAdaptiveSplit tests splitting with two subdirectories (15 and 10
// files), 3 loose files, and a ceiling of 20.
func TestAdaptiveSplit(t *testing.T) {
	var files []string
	files = append(files, treeFiles("sub1", 15)...)
	files = append(files, treeFiles("sub2", 10)...)
	files = append(files, "loose1.pdf", "loose2.pdf", "loose3.pdf")
	fs := &fakeFS{files: files}
	up := newFakeUploader(fs, 20)

	rep := New(up, fs, nil, fastOpts()).Upload(context.Background(), "")

	assert.True(t, rep.OK)
	assert.ElementsMatch(t, []string{"sub1", "sub2"}, rep.FilesystemRuns,
		"exactly one filesystem run per subdirectory")

	require.Len(t, rep.FallbackRuns, 1)
	assert.ElementsMatch(t, []string{"loose1.pdf", "loose2.pdf", "loose3.pdf"}, rep.FallbackRuns[0].Files,
		"loose files go through the flat fallback path")

	assert.Equal(t, 1, up.treeCalls[""], "the failing deep call must not be retried")
}

// 🧪 TestRecursiveSplit tests that an oversized subdirectory re-applies the rule
func TestRecursiveSplit(t *testing.T) {
	var files []string
	files = append(files, treeFiles("big/inner1", 8)...)
	files = append(files, treeFiles("big/inner2", 8)...)
	files = append(files, treeFiles("small", 3)...)
	fs := &fakeFS{files: files}
	up := newFakeUploader(fs, 10)

	rep := New(up, fs, nil, fastOpts()).Upload(context.Background(), "")

	assert.True(t, rep.OK)
	assert.ElementsMatch(t, []string{"big/inner1", "big/inner2", "small"}, rep.FilesystemRuns)
}

// 🧪 TestSubtreeErrorIsolation tests that a failing subtree never aborts siblings
func TestSubtreeErrorIsolation(t *testing.T) {
	var files []string
	files = append(files, treeFiles("sub1", 15)...)
	files = append(files, treeFiles("sub2", 10)...)
	fs := &fakeFS{files: files}
	up := newFakeUploader(fs, 20)
	up.treeErrs["sub1"] = errors.New("store rejected the archive")

	rep := New(up, fs, nil, fastOpts()).Upload(context.Background(), "")

	assert.False(t, rep.OK)
	assert.Equal(t, []string{"sub2"}, rep.FilesystemRuns, "sibling subtree still uploads")
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, ErrTypeFilesystem, rep.Errors[0].Type)
	assert.Equal(t, "sub1", rep.Errors[0].Path)
}

// 🧪 TestFallbackFileError tests structured fallback errors
func TestFallbackFileError(t *testing.T) {
	var files []string
	files = append(files, treeFiles("sub1", 15)...)
	files = append(files, "broken.pdf", "fine.pdf")
	fs := &fakeFS{files: files}
	up := newFakeUploader(fs, 10)
	up.fileFails["broken.pdf"] = 100 // never recovers

	rep := New(up, fs, nil, fastOpts()).Upload(context.Background(), "")

	assert.False(t, rep.OK)
	require.Len(t, rep.FallbackRuns, 1)
	assert.NotEmpty(t, rep.FallbackRuns[0].Err)

	found := false
	for _, e := range rep.Errors {
		if e.Type == ErrTypeFallback && e.Path == "broken.pdf" {
			found = true
		}
	}
	assert.True(t, found, "fallback failure must appear as a structured fallback-parent-files error")
	assert.Equal(t, 1, up.fileCalls["fine.pdf"], "sibling files still upload")
}

// 🧪 TestFallbackBatching tests fixed-size batch grouping
func TestFallbackBatching(t *testing.T) {
	files := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}
	// Force the root over capacity with a subdirectory, leaving loose files.
	files = append(files, treeFiles("sub", 10)...)
	fs := &fakeFS{files: files}
	up := newFakeUploader(fs, 10)

	opts := fastOpts()
	opts.BatchSize = 2
	rep := New(up, fs, nil, opts).Upload(context.Background(), "")

	assert.True(t, rep.OK)
	require.Len(t, rep.FallbackRuns, 3, "5 loose files at batch size 2 means 3 batches")
	assert.Len(t, rep.FallbackRuns[0].Files, 2)
	assert.Len(t, rep.FallbackRuns[2].Files, 1)
	for i, run := range rep.FallbackRuns {
		assert.Equal(t, i+1, run.Batch)
	}
}

// 🧪 TestFileUploadRetries tests transient retry in the fallback path
func TestFileUploadRetries(t *testing.T) {
	files := append(treeFiles("sub", 10), "flaky.pdf")
	fs := &fakeFS{files: files}
	up := newFakeUploader(fs, 10)
	up.fileFails["flaky.pdf"] = 2 // succeeds on third attempt

	rep := New(up, fs, nil, fastOpts()).Upload(context.Background(), "")

	assert.True(t, rep.OK)
	assert.Equal(t, 3, up.fileCalls["flaky.pdf"])
}

// 🧪 TestUploadOne tests single-file upload with retry
func TestUploadOne(t *testing.T) {
	fs := &fakeFS{}
	up := newFakeUploader(fs, 10)
	up.fileFails["pages/home.html"] = 1

	o := New(up, fs, nil, fastOpts())
	err := o.UploadOne(context.Background(), "/abs/home.html", "pages/home.html")

	require.NoError(t, err)
	assert.Equal(t, 2, up.fileCalls["pages/home.html"])
}

// 🧪 TestProgressEvents tests observer notification across both paths
func TestProgressEvents(t *testing.T) {
	var files []string
	files = append(files, treeFiles("sub", 10)...)
	files = append(files, "ok.pdf", "broken.pdf")
	fs := &fakeFS{files: files}
	up := newFakeUploader(fs, 10)
	up.fileFails["broken.pdf"] = 100

	rec := &progress.Recorder{}
	New(up, fs, rec, fastOpts()).Upload(context.Background(), "")

	assert.Equal(t, 2, rec.Count(progress.KindStart), "one start per fallback file")
	assert.Equal(t, 2, rec.Count(progress.KindDone), "the subtree plus the good file")
	assert.Equal(t, 1, rec.Count(progress.KindError))
}

// 🧪 TestBuildTree tests tree construction and counting
func TestBuildTree(t *testing.T) {
	var files []string
	files = append(files, treeFiles("a/b", 3)...)
	files = append(files, treeFiles("a", 2)...)
	files = append(files, "root.txt")
	fs := &fakeFS{files: files}

	tree, err := BuildTree(fs, "")
	require.NoError(t, err)

	assert.Equal(t, 6, tree.TotalFiles())
	assert.Equal(t, []string{"root.txt"}, tree.DirectFiles)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "a", tree.Children[0].Path)
	assert.Len(t, tree.Children[0].DirectFiles, 2)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, 3, tree.Children[0].Children[0].TotalFiles())
}
