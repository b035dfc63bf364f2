package update

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `{
	"tag_name": "v1.2.0",
	"body": "Faster chunked uploads.",
	"published_at": "2026-07-01T10:00:00Z",
	"assets": [
		{
			"name": "datadock-1.2.0-linux-amd64.tar.gz",
			"browser_download_url": "https://example.com/datadock-1.2.0-linux-amd64.tar.gz"
		}
	]
}`

func TestLatestReleaseQueriesFeed(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, err := w.Write([]byte(testFeed))
		assert.NoError(t, err)
	}))
	defer ts.Close()

	feedURL = ts.URL
	fs = afero.NewMemMapFs()

	checker := NewChecker("/home/user/.datadock.yaml")
	release, err := checker.LatestRelease()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.0", release.TagName)
	assert.Equal(t, time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC), release.PublishedAt)
	require.Len(t, release.Assets, 1)
	assert.Equal(t, "datadock-1.2.0-linux-amd64.tar.gz", release.Assets[0].Name)
	assert.Equal(t, 1, hits)

	cached, err := afero.ReadFile(fs, "/home/user/.datadock-release.json")
	require.NoError(t, err)
	assert.JSONEq(t, testFeed, string(cached))
}

func TestLatestReleaseUsesFreshCache(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	defer ts.Close()

	feedURL = ts.URL
	fs = afero.NewMemMapFs()

	cachePath := "/home/user/.datadock-release.json"
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte(`{"tag_name": "v1.1.0"}`), 0644))
	info, err := fs.Stat(cachePath)
	require.NoError(t, err)

	checker := NewChecker("/home/user/.datadock.yaml")
	checker.clock = clockwork.NewFakeClockAt(info.ModTime().Add(time.Minute))

	release, err := checker.LatestRelease()
	require.NoError(t, err)
	assert.Equal(t, "v1.1.0", release.TagName)
	assert.Zero(t, hits)
}

func TestLatestReleaseRefreshesStaleCache(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte(testFeed))
		assert.NoError(t, err)
	}))
	defer ts.Close()

	feedURL = ts.URL
	fs = afero.NewMemMapFs()

	cachePath := "/home/user/.datadock-release.json"
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte(`{"tag_name": "v1.1.0"}`), 0644))
	info, err := fs.Stat(cachePath)
	require.NoError(t, err)

	checker := NewChecker("/home/user/.datadock.yaml")
	checker.clock = clockwork.NewFakeClockAt(
		info.ModTime().Add(CacheRefreshInterval + time.Second))

	release, err := checker.LatestRelease()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", release.TagName)

	cached, err := afero.ReadFile(fs, cachePath)
	require.NoError(t, err)
	assert.JSONEq(t, testFeed, string(cached))
}

func TestLatestReleaseIgnoresCorruptCache(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte(testFeed))
		assert.NoError(t, err)
	}))
	defer ts.Close()

	feedURL = ts.URL
	fs = afero.NewMemMapFs()

	cachePath := "/home/user/.datadock-release.json"
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte("not json"), 0644))
	info, err := fs.Stat(cachePath)
	require.NoError(t, err)

	checker := NewChecker("/home/user/.datadock.yaml")
	checker.clock = clockwork.NewFakeClockAt(info.ModTime())

	release, err := checker.LatestRelease()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", release.TagName)
}

func TestLatestReleaseFeedError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer ts.Close()

	feedURL = ts.URL
	fs = afero.NewMemMapFs()

	checker := NewChecker("/home/user/.datadock.yaml")
	_, err := checker.LatestRelease()
	assert.EqualError(t, err, "release feed responded with 403 Forbidden")
}

func TestNewerThan(t *testing.T) {
	tests := []struct {
		name    string
		current string
		tag     string
		exp     bool
	}{
		{
			name:    "behind the release",
			current: "1.0.0",
			tag:     "v1.1.0",
			exp:     true,
		},
		{
			name:    "up to date",
			current: "1.1.0",
			tag:     "v1.1.0",
			exp:     false,
		},
		{
			name:    "ahead of the release",
			current: "1.2.0",
			tag:     "v1.1.0",
			exp:     false,
		},
		{
			name:    "development build",
			current: "set-by-make",
			tag:     "v1.1.0",
			exp:     false,
		},
		{
			name:    "unparseable tag",
			current: "1.0.0",
			tag:     "latest",
			exp:     false,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			release := Release{TagName: test.tag}
			assert.Equal(t, test.exp, release.NewerThan(test.current))
		})
	}
}

func TestNotes(t *testing.T) {
	release := Release{Body: "```\nFaster chunked uploads.\nFixed the idle timer.\n```"}
	assert.Equal(t, "Faster chunked uploads.\nFixed the idle timer.", release.Notes())
}
