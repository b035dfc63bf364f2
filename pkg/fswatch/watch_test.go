package fswatch

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadock/datadock/pkg/errors"
)

func TestCollectDirs(t *testing.T) {
	tests := []struct {
		name    string
		dirs    []string
		files   []string
		root    string
		expDirs []string
	}{
		{
			name: "Nested dataset folders",
			dirs: []string{"/data/alice", "/data/alice/Dataset1",
				"/data/alice/Dataset1/sub", "/data/bob"},
			files: []string{"/data/alice/Dataset1/one.dat"},
			root:  "/data",
			expDirs: []string{"/data", "/data/alice", "/data/alice/Dataset1",
				"/data/alice/Dataset1/sub", "/data/bob"},
		},
		{
			name:    "Hidden directories are skipped",
			dirs:    []string{"/data/alice", "/data/.trash", "/data/.trash/old"},
			root:    "/data",
			expDirs: []string{"/data", "/data/alice"},
		},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		for _, dir := range test.dirs {
			assert.NoError(t, fs.MkdirAll(dir, 0755))
		}
		for _, file := range test.files {
			assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
		}

		dirs, err := collectDirs(test.root)
		assert.NoError(t, err)

		// Sort for consistency.
		sort.Strings(test.expDirs)
		sort.Strings(dirs)
		assert.Equal(t, test.expDirs, dirs, test.name)
	}
}

func TestCollectDirsMissingRoot(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := collectDirs("/nope")
	assert.Equal(t, errors.FileNotFound{Path: "/nope"}, err)
}

func TestWaitIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	watcher := &Watcher{Events: make(chan struct{}, 1), clock: clock}

	result := make(chan bool, 1)
	go func() {
		result <- watcher.WaitIdle(context.Background(), 5*time.Second)
	}()

	watcher.Events <- struct{}{}
	clock.BlockUntil(1)

	// A change during the quiet window starts it over.
	watcher.Events <- struct{}{}
	clock.BlockUntil(2)

	clock.Advance(5 * time.Second)
	assert.True(t, <-result)
}

func TestWaitIdleCanceled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	watcher := &Watcher{Events: make(chan struct{}, 1), clock: clock}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		result <- watcher.WaitIdle(ctx, 5*time.Second)
	}()

	watcher.Events <- struct{}{}
	clock.BlockUntil(1)

	cancel()
	assert.False(t, <-result)
}

func TestWatchDetectsChanges(t *testing.T) {
	fs = afero.NewOsFs()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alice", "Dataset1"), 0755))

	watcher, err := Watch(root)
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, ioutil.WriteFile(
		filepath.Join(root, "alice", "Dataset1", "one.dat"), []byte("abc"), 0644))
	waitForEvent(t, watcher)

	// Let the burst from the write settle before the next change.
	for {
		select {
		case <-watcher.Events:
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}

	require.NoError(t, os.Mkdir(filepath.Join(root, "bob"), 0755))
	waitForEvent(t, watcher)
}

func TestWatchMissingRoot(t *testing.T) {
	fs = afero.NewOsFs()

	missing := filepath.Join(t.TempDir(), "missing")
	_, err := Watch(missing)
	assert.Equal(t, errors.FileNotFound{Path: missing}, err)
}

func waitForEvent(t *testing.T, watcher *Watcher) {
	select {
	case <-watcher.Events:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change event")
	}
}
