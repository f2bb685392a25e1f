package mapping

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 🧪 TestSanitize tests name fragment canonicalization
func TestSanitize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        string
		description string
	}{
		{
			name:        "simple_lowercase",
			input:       "Hello World",
			want:        "hello-world",
			description: "should lowercase and hyphenate spaces",
		},
		{
			name:        "diacritics",
			input:       "Ångström Café",
			want:        "angstrom-cafe",
			description: "should strip diacritics via NFD decomposition",
		},
		{
			name:        "percent_encoding",
			input:       "My%20File%20Name",
			want:        "my-file-name",
			description: "should decode percent-encoding before sanitizing",
		},
		{
			name:        "symbol_runs",
			input:       "a---b___c!!!d",
			want:        "a-b-c-d",
			description: "should collapse runs of disallowed characters to one hyphen",
		},
		{
			name:        "leading_trailing",
			input:       "--report 2024--",
			want:        "report-2024",
			description: "should trim leading and trailing hyphens",
		},
		{
			name:        "empty",
			input:       "!!!",
			want:        "",
			description: "should return empty string when nothing survives",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input), tt.description)
		})
	}
}

// 🧪 TestNewPageContext tests page context derivation
func TestNewPageContext(t *testing.T) {
	tests := []struct {
		name       string
		pagePath   string
		wantSlug   string
		wantDir    string
		wantParent string
	}{
		{
			name:       "nested_page",
			pagePath:   "guides/setup/Getting Started.html",
			wantSlug:   "getting-started",
			wantDir:    "guides/setup",
			wantParent: "guides",
		},
		{
			name:       "root_page",
			pagePath:   "index.html",
			wantSlug:   "index",
			wantDir:    "",
			wantParent: "",
		},
		{
			name:       "single_level",
			pagePath:   "docs/overview.html",
			wantSlug:   "overview",
			wantDir:    "docs",
			wantParent: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := NewPageContext(tt.pagePath)
			assert.Equal(t, tt.wantSlug, pc.Slug)
			assert.Equal(t, tt.wantDir, pc.Dir)
			assert.Equal(t, tt.wantParent, pc.ParentDir)
		})
	}
}

// 🧪 TestMapRouting tests shadow vs shared-media routing
func TestMapRouting(t *testing.T) {
	m := NewMapper()
	page := NewPageContext("guides/setup/getting-started.html")

	imgTarget := m.Map("https://old.example.com/img/Logo.PNG", page)
	assert.True(t, strings.HasPrefix(imgTarget, "guides/setup/.getting-started/"),
		"images should land in the page's shadow folder, got %s", imgTarget)
	assert.True(t, strings.HasSuffix(imgTarget, ".png"))

	docTarget := m.Map("https://old.example.com/files/Annual Report.pdf", page)
	assert.True(t, strings.HasPrefix(docTarget, "guides/media/"),
		"documents should land in the parent's shared-media folder, got %s", docTarget)
	assert.True(t, strings.HasSuffix(docTarget, ".pdf"))
}

// 🧪 TestMapRootPage tests routing for a page with no parent segment
func TestMapRootPage(t *testing.T) {
	m := NewMapper()
	page := NewPageContext("index.html")

	imgTarget := m.Map("https://old.example.com/img/logo.png", page)
	assert.True(t, strings.HasPrefix(imgTarget, ".index/"), "got %s", imgTarget)

	docTarget := m.Map("https://old.example.com/files/report.pdf", page)
	assert.True(t, strings.HasPrefix(docTarget, "media/"), "got %s", docTarget)
}

// 🧪 TestMapDeterminism tests that mapping is a pure function
func TestMapDeterminism(t *testing.T) {
	m := NewMapper()
	page := NewPageContext("a/b/page.html")
	ref := "https://old.example.com/assets/Photo%20Of%20Café.jpeg"

	first := m.Map(ref, page)
	second := m.Map(ref, page)
	assert.Equal(t, first, second, "mapping the same pair twice must yield identical paths")
}

// 🧪 TestMapCollisionFreedom tests that colliding base names stay distinct
func TestMapCollisionFreedom(t *testing.T) {
	m := NewMapper()
	page := NewPageContext("a/page.html")

	// Both sanitize to "logo.png" without the hash suffix.
	a := m.Map("https://old.example.com/one/Logo.png", page)
	b := m.Map("https://old.example.com/two/LOGO.png", page)
	require.NotEqual(t, a, b, "distinct sources must map to distinct targets")
}

// 🧪 TestTargetName tests name derivation edge cases
func TestTargetName(t *testing.T) {
	name := TargetName("https://old.example.com/x/ Présentation FINALE.pdf?v=2")
	assert.Regexp(t, `^presentation-finale-[0-9a-f]{8}\.pdf$`, name)

	// No surviving base name: hash only.
	name = TargetName("https://old.example.com/x/%%%.png")
	assert.Regexp(t, `^[0-9a-f]{8}\.png$`, name)

	// No extension at all.
	name = TargetName("https://old.example.com/download/12345")
	assert.Regexp(t, `^12345-[0-9a-f]{8}$`, name)
}

// 🧪 TestIsImage tests extension classification
func TestIsImage(t *testing.T) {
	m := NewMapper()
	assert.True(t, m.IsImage("https://x.test/a/photo.JPG"))
	assert.True(t, m.IsImage("https://x.test/a/icon.svg?v=1"))
	assert.False(t, m.IsImage("https://x.test/a/report.pdf"))
	assert.False(t, m.IsImage("https://x.test/a/archive"))
}
