package bugtool

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/version"
)

type file struct {
	path, contents string
}

func TestSetupSettings(t *testing.T) {
	fs = afero.NewMemMapFs()
	parseSettings = func(path string) (config.Settings, error) {
		assert.Equal(t, "/home/user/.datadock.yaml", path)
		settings := config.DefaultSettings()
		settings.Server = config.Server{
			URL:      "https://mytardis.example.edu",
			Username: "instrument-pc",
			APIKey:   "secret-key",
		}
		return settings, nil
	}

	require.NoError(t, setupSettings("root", "/home/user/.datadock.yaml"))

	contents, err := afero.ReadFile(fs, "root/settings.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(contents), "apiKey: <redacted>")
	assert.NotContains(t, string(contents), "secret-key")
	assert.Contains(t, string(contents), "url: https://mytardis.example.edu")
}

func TestSetupLogFile(t *testing.T) {
	tests := []struct {
		name      string
		mockFiles []file
		expFiles  []file
		expError  error
	}{
		{
			name:      "Log exists",
			mockFiles: []file{{"/home/user/datadock.log", "log contents"}},
			expFiles:  []file{{"root/datadock.log", "log contents"}},
		},
		{
			name: "Log doesn't exist",
			expError: errors.New("open source: open /home/user/datadock.log: " +
				"file does not exist"),
		},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		assert.NoError(t, setupFiles(test.mockFiles))
		err := setupLogFile("root", "/home/user/.datadock.yaml")
		if test.expError == nil {
			assert.NoError(t, err, test.name)
		} else {
			assert.EqualError(t, err, test.expError.Error(), test.name)
		}
		assertFiles(t, test.expFiles, test.name)
	}
}

func TestSetupHistory(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) {
		assert.Equal(t, "~/.datadock.db", path)
		return "/home/user/.datadock.db", nil
	}
	require.NoError(t, setupFiles([]file{{"/home/user/.datadock.db", "db contents"}}))

	require.NoError(t, setupHistory("root"))
	assertFiles(t, []file{{"root/history.db", "db contents"}},
		"setupHistory should copy the database")
}

func TestSetupVersions(t *testing.T) {
	fs = afero.NewMemMapFs()
	version.Version = "1.2.3"

	require.NoError(t, setupVersions("root"))

	contents, err := afero.ReadFile(fs, "root/versions.txt")
	require.NoError(t, err)
	assert.Contains(t, string(contents), "datadock version: 1.2.3")
	assert.Contains(t, string(contents), runtime.Version())
}

func TestSetupServerInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"meta": {"total_count": 1},
				"objects": [{"id": 7, "uuid": "uuid-1"}]}`)
		}))
	defer server.Close()

	fs = afero.NewMemMapFs()
	parseSettings = func(string) (config.Settings, error) {
		settings := config.DefaultSettings()
		settings.Server = config.Server{
			URL:      server.URL,
			Username: "instrument-pc",
			APIKey:   "secret-key",
		}
		settings.UUID = "uuid-1"
		return settings, nil
	}

	require.NoError(t, setupServerInfo("root", "/home/user/.datadock.yaml"))

	contents, err := afero.ReadFile(fs, "root/server.txt")
	require.NoError(t, err)
	assert.Contains(t, string(contents), "server:   "+server.URL)
	assert.Contains(t, string(contents), "uploader: uuid-1")
	assert.Contains(t, string(contents), "registration: registered")

	parseSettings = func(string) (config.Settings, error) {
		return config.DefaultSettings(), nil
	}
	err = setupServerInfo("root", "/home/user/.datadock.yaml")
	assert.EqualError(t, err, "no server configured")
}

func TestTarDirectory(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, setupFiles([]file{
		{"bundle/settings.yaml", "settings contents"},
		{"bundle/datadock.log", "log contents"},
	}))

	require.NoError(t, tarDirectory("bundle", "out.tar.gz"))

	archive, err := afero.ReadFile(fs, "out.tar.gz")
	require.NoError(t, err)

	gzr, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	defer gzr.Close()

	found := map[string]string{}
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if header.Typeflag != tar.TypeReg {
			continue
		}

		contents, err := ioutil.ReadAll(tr)
		require.NoError(t, err)
		found[header.Name] = string(contents)
	}

	assert.Equal(t, map[string]string{
		"datadock-bug-info/settings.yaml": "settings contents",
		"datadock-bug-info/datadock.log":  "log contents",
	}, found)
}

func setupFiles(files []file) error {
	for _, f := range files {
		if err := afero.WriteFile(fs, f.path, []byte(f.contents), 0644); err != nil {
			return err
		}
	}
	return nil
}

func assertFiles(t *testing.T, files []file, msg string) {
	for _, f := range files {
		contents, err := afero.ReadFile(fs, f.path)
		assert.NoError(t, err, msg)
		assert.Equal(t, f.contents, string(contents), msg)
	}
}
