package download

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/webmigrate/pkg/mapping"
	"github.com/walteh/webmigrate/pkg/transport"
	"gitlab.com/tozd/go/errors"
)

// fakeFetcher scripts per-URL behavior and counts calls.
type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	notFound map[string]bool
	failures map[string]int // transient failures before success
	results  map[string]*transport.FetchResult
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:    map[string]int{},
		notFound: map[string]bool{},
		failures: map[string]int{},
		results:  map[string]*transport.FetchResult{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*transport.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++

	if f.notFound[url] {
		return nil, errors.Errorf("%w: %s", transport.ErrNotFound, url)
	}
	if f.failures[url] > 0 {
		f.failures[url]--
		return nil, &transport.StatusError{URL: url, StatusCode: 503}
	}
	if res, ok := f.results[url]; ok {
		return res, nil
	}
	return &transport.FetchResult{Body: []byte("default-bytes"), ContentType: "application/pdf"}, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// memFS is an in-memory staging surface.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFS() *memFS {
	return &memFS{files: map[string][]byte{}}
}

func (m *memFS) WriteFileAtomic(path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), content...)
	return nil
}

func (m *memFS) FileExists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

// fakeCodec converts everything to fixed bytes, or fails on demand.
type fakeCodec struct {
	failConvert    bool
	recompressed   []byte
	recompressErr  error
	convertedBytes []byte
}

func (c *fakeCodec) Convert(data []byte) ([]byte, string, error) {
	if c.failConvert {
		return nil, "", errors.New("unsupported pixel format")
	}
	out := c.convertedBytes
	if out == nil {
		out = []byte("converted")
	}
	return out, ".jpg", nil
}

func (c *fakeCodec) Recompress(data []byte, ext string, maxDim int) ([]byte, error) {
	if c.recompressErr != nil {
		return nil, c.recompressErr
	}
	return c.recompressed, nil
}

func fastOpts() Options {
	return Options{MaxRetries: 3, RetryDelay: time.Millisecond, Concurrency: 4}
}

// 🧪 TestPartialFailureIsolation tests that 404s reject exactly their own entries
func TestPartialFailureIsolation(t *testing.T) {
	for _, concurrency := range []int{1, 2, 10} {
		t.Run(fmt.Sprintf("concurrency_%d", concurrency), func(t *testing.T) {
			fetcher := newFakeFetcher()
			m := mapping.AssetMapping{}
			for i := 0; i < 7; i++ {
				url := fmt.Sprintf("https://old.example.com/a%d.pdf", i)
				m[url] = fmt.Sprintf("media/a%d.pdf", i)
				if i < 3 {
					fetcher.notFound[url] = true
				}
			}

			opts := fastOpts()
			opts.Concurrency = concurrency
			o := New(fetcher, newMemFS(), nil, opts)
			outcomes := o.Download(context.Background(), m)

			require.Len(t, outcomes, 7, "outcome cardinality must match the mapping")
			rejected, fulfilled := 0, 0
			for _, out := range outcomes {
				if out.Fulfilled {
					fulfilled++
				} else {
					rejected++
					assert.Contains(t, out.Reason, "not found")
				}
			}
			assert.Equal(t, 3, rejected)
			assert.Equal(t, 4, fulfilled)
		})
	}
}

// 🧪 TestRetryArithmetic tests attempt counting with transient failures
func TestRetryArithmetic(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		maxRetries    int
		wantCalls     int
		wantFulfilled bool
	}{
		{name: "succeeds_third_attempt", failures: 2, maxRetries: 3, wantCalls: 3, wantFulfilled: true},
		{name: "succeeds_first_attempt", failures: 0, maxRetries: 3, wantCalls: 1, wantFulfilled: true},
		{name: "exhausts_retries", failures: 10, maxRetries: 3, wantCalls: 3, wantFulfilled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			url := "https://old.example.com/flaky.pdf"
			fetcher.failures[url] = tt.failures

			opts := fastOpts()
			opts.MaxRetries = tt.maxRetries
			o := New(fetcher, newMemFS(), nil, opts)
			outcomes := o.Download(context.Background(), mapping.AssetMapping{url: "media/flaky.pdf"})

			require.Len(t, outcomes, 1)
			assert.Equal(t, tt.wantCalls, fetcher.callCount(url), "network call count")
			assert.Equal(t, tt.wantFulfilled, outcomes[0].Fulfilled)
		})
	}
}

// 🧪 TestNotFoundNeverRetried tests that a 404 is a permanent skip
func TestNotFoundNeverRetried(t *testing.T) {
	fetcher := newFakeFetcher()
	url := "https://old.example.com/gone.pdf"
	fetcher.notFound[url] = true

	o := New(fetcher, newMemFS(), nil, fastOpts())
	outcomes := o.Download(context.Background(), mapping.AssetMapping{url: "media/gone.pdf"})

	assert.Equal(t, 1, fetcher.callCount(url), "a 404 must not be retried")
	assert.False(t, outcomes[0].Fulfilled)
}

// 🧪 TestCacheSkip tests the opt-in resume mechanism
func TestCacheSkip(t *testing.T) {
	fetcher := newFakeFetcher()
	fs := newMemFS()
	require.NoError(t, fs.WriteFileAtomic("media/cached.pdf", []byte("old")))

	opts := fastOpts()
	opts.UseCache = true
	o := New(fetcher, fs, nil, opts)
	outcomes := o.Download(context.Background(), mapping.AssetMapping{
		"https://old.example.com/cached.pdf": "media/cached.pdf",
	})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Fulfilled)
	assert.True(t, outcomes[0].Cached)
	assert.Equal(t, 0, fetcher.callCount("https://old.example.com/cached.pdf"),
		"cached entries must be skipped entirely")
}

// 🧪 TestClassification tests extension inference
func TestClassification(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		contentType string
		wantTarget  string
		wantWarning bool
	}{
		{name: "existing_ext_wins", target: "media/doc.pdf", contentType: "application/pdf", wantTarget: "media/doc.pdf"},
		{name: "missing_ext_inferred", target: "media/doc", contentType: "application/pdf", wantTarget: "media/doc.pdf"},
		{name: "charset_parameter", target: "media/notes", contentType: "text/plain; charset=utf-8", wantTarget: "media/notes.txt"},
		{name: "unclassifiable_flagged", target: "media/blob", contentType: "", wantTarget: "media/blob.bin", wantWarning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			url := "https://old.example.com/x"
			fetcher.results[url] = &transport.FetchResult{Body: []byte("b"), ContentType: tt.contentType}

			fs := newMemFS()
			o := New(fetcher, fs, nil, fastOpts())
			outcomes := o.Download(context.Background(), mapping.AssetMapping{url: tt.target})

			require.Len(t, outcomes, 1)
			require.True(t, outcomes[0].Fulfilled)
			assert.Equal(t, tt.wantTarget, outcomes[0].TargetPath)
			if tt.wantWarning {
				assert.NotEmpty(t, outcomes[0].Warning)
			}
			exists, _ := fs.FileExists(tt.wantTarget)
			assert.True(t, exists)
		})
	}
}

// 🧪 TestNormalization tests image re-encoding to the canonical format
func TestNormalization(t *testing.T) {
	fetcher := newFakeFetcher()
	url := "https://old.example.com/photo.bmp"
	fetcher.results[url] = &transport.FetchResult{Body: []byte("bmp-bytes"), ContentType: "image/bmp"}

	fs := newMemFS()
	opts := fastOpts()
	opts.NormalizeImages = true
	o := New(fetcher, fs, &fakeCodec{}, opts)
	outcomes := o.Download(context.Background(), mapping.AssetMapping{url: "pages/.home/photo.bmp"})

	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Fulfilled)
	assert.Equal(t, "pages/.home/photo.jpg", outcomes[0].TargetPath, "canonical extension is forced")

	fs.mu.Lock()
	assert.Equal(t, "converted", string(fs.files["pages/.home/photo.jpg"]))
	fs.mu.Unlock()
}

// 🧪 TestNormalizationProtectedFormats tests the do-not-convert set
func TestNormalizationProtectedFormats(t *testing.T) {
	fetcher := newFakeFetcher()
	url := "https://old.example.com/logo.png"
	fetcher.results[url] = &transport.FetchResult{Body: []byte("png-bytes"), ContentType: "image/png"}

	opts := fastOpts()
	opts.NormalizeImages = true
	fs := newMemFS()
	o := New(fetcher, fs, &fakeCodec{}, opts)
	outcomes := o.Download(context.Background(), mapping.AssetMapping{url: "pages/.home/logo.png"})

	require.True(t, outcomes[0].Fulfilled)
	assert.Equal(t, "pages/.home/logo.png", outcomes[0].TargetPath, "protected formats keep their extension")
	fs.mu.Lock()
	assert.Equal(t, "png-bytes", string(fs.files["pages/.home/logo.png"]), "protected formats keep their bytes")
	fs.mu.Unlock()
}

// 🧪 TestNormalizationFailureFallsBack tests that conversion errors are non-fatal
func TestNormalizationFailureFallsBack(t *testing.T) {
	fetcher := newFakeFetcher()
	url := "https://old.example.com/photo.tiff"
	fetcher.results[url] = &transport.FetchResult{Body: []byte("tiff-bytes"), ContentType: "image/tiff"}

	fs := newMemFS()
	opts := fastOpts()
	opts.NormalizeImages = true
	o := New(fetcher, fs, &fakeCodec{failConvert: true}, opts)
	outcomes := o.Download(context.Background(), mapping.AssetMapping{url: "pages/.home/photo.tiff"})

	require.True(t, outcomes[0].Fulfilled, "conversion failure must not abort the download")
	assert.NotEmpty(t, outcomes[0].Warning)
	fs.mu.Lock()
	assert.Equal(t, "tiff-bytes", string(fs.files["pages/.home/photo.tiff"]), "original bytes are stored")
	fs.mu.Unlock()
}

// 🧪 TestRecompression tests the bounded best-effort pass above the ceiling
func TestRecompression(t *testing.T) {
	big := make([]byte, 100)
	small := []byte("small")

	tests := []struct {
		name  string
		codec *fakeCodec
		want  string
	}{
		{name: "keeps_smaller_output", codec: &fakeCodec{recompressed: small}, want: string(small)},
		{name: "keeps_original_when_bigger", codec: &fakeCodec{recompressed: make([]byte, 500)}, want: string(big)},
		{name: "keeps_original_on_error", codec: &fakeCodec{recompressErr: errors.New("boom")}, want: string(big)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			url := "https://old.example.com/huge.jpg"
			fetcher.results[url] = &transport.FetchResult{Body: big, ContentType: "image/jpeg"}

			fs := newMemFS()
			opts := fastOpts()
			opts.Compress = true
			opts.SizeCeiling = 50
			o := New(fetcher, fs, tt.codec, opts)
			outcomes := o.Download(context.Background(), mapping.AssetMapping{url: "pages/.home/huge.jpg"})

			require.True(t, outcomes[0].Fulfilled)
			fs.mu.Lock()
			assert.Equal(t, tt.want, string(fs.files["pages/.home/huge.jpg"]))
			fs.mu.Unlock()
		})
	}
}
