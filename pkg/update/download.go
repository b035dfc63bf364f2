package update

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/datadock/datadock/pkg/errors"
)

// Download fetches the release tarball for the current platform and extracts
// the datadock binary into destDir. It returns the path of the extracted
// binary.
func Download(release Release, destDir string) (string, error) {
	asset, err := release.assetFor(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}

	resp, err := http.Get(asset.DownloadURL)
	if err != nil {
		return "", errors.TransportError{Op: "download release", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release server responded with %s", resp.Status)
	}

	ctype := resp.Header.Get("Content-Type")
	if !(ctype == "application/x-gzip" || ctype == "application/gzip" ||
		ctype == "application/octet-stream") {
		return "", fmt.Errorf("incorrect content-type: %s", ctype)
	}

	path := filepath.Join(destDir, "datadock")
	if err := extractBinary(resp.Body, path); err != nil {
		return "", errors.WithContext(err, "extract release")
	}
	return path, nil
}

func (r Release) assetFor(goos, goarch string) (Asset, error) {
	for _, asset := range r.Assets {
		name := strings.ToLower(asset.Name)
		if strings.Contains(name, goos) && strings.Contains(name, goarch) {
			return asset, nil
		}
	}
	return Asset{}, fmt.Errorf("release %s has no asset for %s/%s",
		r.TagName, goos, goarch)
}

// extractBinary takes a .tar.gz reader and writes the datadock binary it
// contains to path, preserving the archived file mode.
func extractBinary(src io.Reader, path string) error {
	gzr, err := gzip.NewReader(src)
	if err != nil {
		return errors.WithContext(err, "new gzip reader")
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	// Search for the datadock binary in the tar archive.
	var header *tar.Header
	for {
		header, err = tr.Next()

		switch {
		case err == io.EOF:
			return errors.New("no datadock binary in archive")
		case err != nil:
			return errors.WithContext(err, "read tar header")
		case header == nil:
			continue
		}

		if header.Typeflag == tar.TypeReg && filepath.Base(header.Name) == "datadock" {
			break
		}
	}

	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode))
	if err != nil {
		return errors.WithContext(err, "create path")
	}
	defer file.Close()

	if _, err := io.Copy(file, tr); err != nil {
		return errors.WithContext(err, "io copy")
	}
	return nil
}
