package transfer

import (
	"context"
	"io"
	"io/ioutil"
	"testing"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/staging/mocks"
)

func TestChunkSize(t *testing.T) {
	mib := int64(1024 * 1024)

	tests := []struct {
		name     string
		fileSize int64
		exp      int64
	}{
		{
			name:     "small file keeps the default",
			fileSize: 10 * mib,
			exp:      mib,
		},
		{
			name:     "exactly fifty chunks keeps the default",
			fileSize: 50 * mib,
			exp:      mib,
		},
		{
			name:     "doubles until at most fifty chunks",
			fileSize: 300 * mib,
			exp:      8 * mib,
		},
		{
			name:     "just over fifty chunks doubles once",
			fileSize: 52 * mib,
			exp:      2 * mib,
		},
		{
			name:     "stops doubling at the maximum",
			fileSize: 100 * 1024 * mib,
			exp:      256 * mib,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, ChunkSize(test.fileSize, mib, 256*mib))
		})
	}
}

// chunkRecorder captures the content streamed through PutTemp.
func chunkRecorder(chunks *[]string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		content, err := ioutil.ReadAll(args.Get(2).(io.Reader))
		if err != nil {
			panic(err)
		}
		*chunks = append(*chunks, string(content))
	}
}

func writeLocalFile(t *testing.T, path, contents string) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
}

func TestUploadFreshFile(t *testing.T) {
	writeLocalFile(t, "/data/file.dat", "abcdefghij")

	transport := &mocks.Transport{}
	transport.On("EnsureDir", mock.Anything, "/staging/dataset").Return(nil)
	transport.On("QuerySize", mock.Anything, "/staging/dataset/file.dat").
		Return(int64(0), nil)
	transport.On("RemoveTemp", mock.Anything, "/staging/dataset/.file.dat.chunk").
		Return(nil)

	var chunks []string
	transport.On("PutTemp", mock.Anything, "/staging/dataset/.file.dat.chunk", mock.Anything).
		Run(chunkRecorder(&chunks)).
		Return(nil)
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", true).Return(nil).Once()
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", false).Return(nil)

	var progress []int64
	uploader := ChunkUploader{
		Transport: transport,
		ChunkSize: 4,
		Progress:  func(uploaded, total int64) { progress = append(progress, uploaded) },
	}

	err := uploader.Upload(context.Background(), "/data/file.dat",
		"/staging/dataset/file.dat", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
	assert.Equal(t, []int64{4, 8, 10}, progress)
	transport.AssertExpectations(t)
}

func TestUploadResumesAlignedRemote(t *testing.T) {
	writeLocalFile(t, "/data/file.dat", "abcdefghij")

	transport := &mocks.Transport{}
	transport.On("EnsureDir", mock.Anything, "/staging/dataset").Return(nil)
	transport.On("QuerySize", mock.Anything, "/staging/dataset/file.dat").
		Return(int64(4), nil)
	transport.On("RemoveTemp", mock.Anything, "/staging/dataset/.file.dat.chunk").
		Return(nil)

	var chunks []string
	transport.On("PutTemp", mock.Anything, "/staging/dataset/.file.dat.chunk", mock.Anything).
		Run(chunkRecorder(&chunks)).
		Return(nil)

	// The resumed upload appends from the first chunk. Nothing truncates.
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", false).Return(nil)

	var progress []int64
	uploader := ChunkUploader{
		Transport: transport,
		ChunkSize: 4,
		Progress:  func(uploaded, total int64) { progress = append(progress, uploaded) },
	}

	err := uploader.Upload(context.Background(), "/data/file.dat",
		"/staging/dataset/file.dat", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"efgh", "ij"}, chunks)
	assert.Equal(t, []int64{8, 10}, progress)
	transport.AssertExpectations(t)
}

func TestUploadRestartsMisalignedRemote(t *testing.T) {
	logHook := logrusTest.NewGlobal()
	writeLocalFile(t, "/data/file.dat", "abcdefghij")

	transport := &mocks.Transport{}
	transport.On("EnsureDir", mock.Anything, "/staging/dataset").Return(nil)
	transport.On("QuerySize", mock.Anything, "/staging/dataset/file.dat").
		Return(int64(3), nil)
	transport.On("RemoveTemp", mock.Anything, "/staging/dataset/.file.dat.chunk").
		Return(nil)

	var chunks []string
	transport.On("PutTemp", mock.Anything, "/staging/dataset/.file.dat.chunk", mock.Anything).
		Run(chunkRecorder(&chunks)).
		Return(nil)
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", true).Return(nil).Once()
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", false).Return(nil)

	uploader := ChunkUploader{Transport: transport, ChunkSize: 4}
	err := uploader.Upload(context.Background(), "/data/file.dat",
		"/staging/dataset/file.dat", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)

	warned := false
	for _, entry := range logHook.AllEntries() {
		if entry.Message == "The staging copy doesn't line up with the chunk size. Restarting the upload." {
			warned = true
		}
	}
	assert.True(t, warned)
	transport.AssertExpectations(t)
}

func TestUploadRestartsWhenRemoteLarger(t *testing.T) {
	logHook := logrusTest.NewGlobal()
	writeLocalFile(t, "/data/file.dat", "abcdefghij")

	transport := &mocks.Transport{}
	transport.On("EnsureDir", mock.Anything, "/staging/dataset").Return(nil)
	transport.On("QuerySize", mock.Anything, "/staging/dataset/file.dat").
		Return(int64(99), nil)
	transport.On("RemoveTemp", mock.Anything, "/staging/dataset/.file.dat.chunk").
		Return(nil)

	var chunks []string
	transport.On("PutTemp", mock.Anything, "/staging/dataset/.file.dat.chunk", mock.Anything).
		Run(chunkRecorder(&chunks)).
		Return(nil)
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", true).Return(nil).Once()
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", false).Return(nil)

	uploader := ChunkUploader{Transport: transport, ChunkSize: 4}
	err := uploader.Upload(context.Background(), "/data/file.dat",
		"/staging/dataset/file.dat", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)

	warned := false
	for _, entry := range logHook.AllEntries() {
		if entry.Message == "The staging copy is larger than the local file. Restarting the upload." {
			warned = true
		}
	}
	assert.True(t, warned)
	transport.AssertExpectations(t)
}

func TestUploadAlreadyComplete(t *testing.T) {
	writeLocalFile(t, "/data/file.dat", "abcdefghij")

	transport := &mocks.Transport{}
	transport.On("EnsureDir", mock.Anything, "/staging/dataset").Return(nil)
	transport.On("QuerySize", mock.Anything, "/staging/dataset/file.dat").
		Return(int64(10), nil)

	var progress []int64
	uploader := ChunkUploader{
		Transport: transport,
		ChunkSize: 4,
		Progress:  func(uploaded, total int64) { progress = append(progress, uploaded) },
	}

	err := uploader.Upload(context.Background(), "/data/file.dat",
		"/staging/dataset/file.dat", 10)
	require.NoError(t, err)

	assert.Equal(t, []int64{10}, progress)
	transport.AssertNotCalled(t, "PutTemp",
		mock.Anything, mock.Anything, mock.Anything)
	transport.AssertExpectations(t)
}

func TestUploadCanceledBetweenChunks(t *testing.T) {
	writeLocalFile(t, "/data/file.dat", "abcdefghij")
	ctx, cancel := context.WithCancel(context.Background())

	transport := &mocks.Transport{}
	transport.On("EnsureDir", mock.Anything, "/staging/dataset").Return(nil)
	transport.On("QuerySize", mock.Anything, "/staging/dataset/file.dat").
		Return(int64(0), nil)
	transport.On("RemoveTemp", mock.Anything, "/staging/dataset/.file.dat.chunk").
		Return(nil)

	// Cancel while the second chunk is in flight. The chunk still lands,
	// then the loop notices the cancellation at the boundary.
	calls := 0
	transport.On("PutTemp", mock.Anything, "/staging/dataset/.file.dat.chunk", mock.Anything).
		Run(func(args mock.Arguments) {
			calls++
			if calls == 2 {
				cancel()
			}
		}).
		Return(nil)
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", true).Return(nil).Once()
	transport.On("AppendAndCleanup", mock.Anything, "/staging/dataset/.file.dat.chunk",
		"/staging/dataset/file.dat", false).Return(nil)

	var progress []int64
	uploader := ChunkUploader{
		Transport: transport,
		ChunkSize: 4,
		Progress:  func(uploaded, total int64) { progress = append(progress, uploaded) },
	}

	err := uploader.Upload(ctx, "/data/file.dat", "/staging/dataset/file.dat", 10)
	assert.Equal(t, errors.ErrCanceled, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{4, 8}, progress)
	transport.AssertExpectations(t)
}
