// Package update checks the release feed for newer datadock builds and
// downloads release tarballs.
package update

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/datadock/datadock/pkg/errors"
)

// CacheRefreshInterval is how long a cached feed response stays fresh. The
// feed throttles repeated queries from the same address, so passes within
// the window reuse the cached copy instead of querying again.
const CacheRefreshInterval = 300 * time.Second

// cacheFilename is the name of the cached feed response. It lives in the
// same directory as the settings file.
const cacheFilename = ".datadock-release.json"

var (
	feedURL = "https://api.github.com/repos/datadock/datadock/releases/latest"
	fs      = afero.NewOsFs()
)

// Release is the newest entry in the release feed.
type Release struct {
	TagName     string    `json:"tag_name"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// Checker fetches the latest release, caching the feed response next to the
// settings file.
type Checker struct {
	cachePath string
	clock     clockwork.Clock
}

// CachePath returns where the feed cache for the given settings file lives.
func CachePath(settingsPath string) string {
	return filepath.Join(filepath.Dir(settingsPath), cacheFilename)
}

// NewChecker returns a Checker that keeps its feed cache in the directory
// containing settingsPath.
func NewChecker(settingsPath string) *Checker {
	return &Checker{
		cachePath: CachePath(settingsPath),
		clock:     clockwork.NewRealClock(),
	}
}

// LatestRelease returns the most recent release in the feed. The cached
// response is used when it's younger than CacheRefreshInterval.
func (c *Checker) LatestRelease() (Release, error) {
	if release, ok := c.readCache(); ok {
		return release, nil
	}

	resp, err := http.Get(feedURL)
	if err != nil {
		return Release{}, errors.TransportError{Op: "query release feed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("release feed responded with %s", resp.Status)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return Release{}, errors.WithContext(err, "read release feed")
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return Release{}, errors.WithContext(err, "parse release feed")
	}

	if err := afero.WriteFile(fs, c.cachePath, body, 0644); err != nil {
		log.WithError(err).Warn("Failed to cache the release feed response")
	}
	return release, nil
}

func (c *Checker) readCache() (Release, bool) {
	info, err := fs.Stat(c.cachePath)
	if err != nil {
		return Release{}, false
	}
	if c.clock.Since(info.ModTime()) > CacheRefreshInterval {
		return Release{}, false
	}

	contents, err := afero.ReadFile(fs, c.cachePath)
	if err != nil {
		return Release{}, false
	}

	var release Release
	if err := json.Unmarshal(contents, &release); err != nil {
		log.WithError(err).Warn("Ignoring a corrupt release feed cache")
		return Release{}, false
	}
	return release, true
}

// Version parses the release tag into a comparable version.
func (r Release) Version() (*goversion.Version, error) {
	version, err := goversion.NewVersion(strings.TrimPrefix(r.TagName, "v"))
	if err != nil {
		return nil, errors.WithContext(err, "parse release tag")
	}
	return version, nil
}

// NewerThan reports whether the release is newer than the given version
// string. Versions that don't parse, such as development builds, are never
// considered outdated.
func (r Release) NewerThan(current string) bool {
	own, err := goversion.NewVersion(current)
	if err != nil {
		return false
	}
	remote, err := r.Version()
	if err != nil {
		return false
	}
	return own.LessThan(remote)
}

// Notes returns the release notes. Release notes are wrapped in ``` markers
// so they render in a fixed width font on the web, which just adds clutter
// in a terminal.
func (r Release) Notes() string {
	var lines []string
	for _, line := range strings.Split(r.Body, "\n") {
		if strings.TrimSpace(line) == "```" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
