package transfer

import (
	"context"
	"io"
	"path"

	log "github.com/sirupsen/logrus"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/staging"
)

// targetChunkCount is the number of chunks per file that the chunk size
// doubling aims to stay under.
const targetChunkCount = 50

// ChunkSize picks the chunk size for a file. Starting from the default, the
// size doubles until the file splits into at most targetChunkCount chunks or
// the maximum is reached.
func ChunkSize(fileSize, defaultChunkSize, maxChunkSize int64) int64 {
	chunkSize := defaultChunkSize
	for fileSize/chunkSize > targetChunkCount && chunkSize < maxChunkSize {
		chunkSize *= 2
	}
	return chunkSize
}

// Progress is called after each chunk lands, with the number of bytes of the
// final file in place so far and the file's total size.
type Progress func(uploaded, total int64)

// ChunkUploader copies files to the staging host in chunks. Each chunk is
// staged at a temporary path and then spliced onto the final file, so the
// final file's length between chunks is always a whole number of chunks.
// That length is what makes an interrupted upload resumable: a later attempt
// with the same chunk size picks up exactly where the last one stopped.
type ChunkUploader struct {
	Transport staging.Transport
	ChunkSize int64
	Progress  Progress
}

// Upload copies the local file at localPath to finalPath on the staging
// host. Cancellation is only honored between chunks; a chunk in flight
// always runs to completion so the remote length stays aligned.
func (u *ChunkUploader) Upload(ctx context.Context, localPath, finalPath string, size int64) error {
	tmpPath := tempChunkPath(finalPath)

	if err := u.Transport.EnsureDir(ctx, path.Dir(finalPath)); err != nil {
		return err
	}

	remoteSize, err := u.Transport.QuerySize(ctx, finalPath)
	if err != nil {
		return err
	}

	offset := u.resumeOffset(remoteSize, size)
	if offset >= size && size > 0 {
		log.WithField("path", finalPath).Debug("File is already in the staging area")
		u.progress(size, size)
		return nil
	}

	// A chunk left behind by an interrupted attempt must not get spliced
	// onto the file twice.
	if err := u.Transport.RemoveTemp(ctx, tmpPath); err != nil {
		return err
	}

	file, err := fs.Open(localPath)
	if err != nil {
		return errors.WithContext(err, "open local file")
	}
	defer file.Close()

	for offset < size {
		if ctx.Err() != nil {
			return errors.ErrCanceled
		}

		chunkLen := u.ChunkSize
		if remaining := size - offset; remaining < chunkLen {
			chunkLen = remaining
		}

		chunk := io.NewSectionReader(file, offset, chunkLen)
		if err := u.Transport.PutTemp(ctx, tmpPath, chunk); err != nil {
			return err
		}
		if err := u.Transport.AppendAndCleanup(ctx, tmpPath, finalPath, offset == 0); err != nil {
			return err
		}

		offset += chunkLen
		u.progress(offset, size)

		if ctx.Err() != nil {
			return errors.ErrCanceled
		}
	}
	return nil
}

// resumeOffset decides where the upload starts given what's already on the
// staging host.
func (u *ChunkUploader) resumeOffset(remoteSize, localSize int64) int64 {
	switch {
	case remoteSize == 0:
		return 0
	case remoteSize == localSize:
		return remoteSize
	case remoteSize > localSize:
		log.WithFields(log.Fields{
			"remoteSize": remoteSize,
			"localSize":  localSize,
		}).Warn("The staging copy is larger than the local file. Restarting the upload.")
		return 0
	case remoteSize%u.ChunkSize == 0:
		log.WithField("bytes", remoteSize).Info("Resuming upload from the staging copy")
		return remoteSize
	default:
		log.WithFields(log.Fields{
			"remoteSize": remoteSize,
			"chunkSize":  u.ChunkSize,
		}).Warn("The staging copy doesn't line up with the chunk size. Restarting the upload.")
		return 0
	}
}

func (u *ChunkUploader) progress(uploaded, total int64) {
	if u.Progress != nil {
		u.Progress(uploaded, total)
	}
}

// tempChunkPath returns where chunks are staged before being spliced onto
// the file at finalPath.
func tempChunkPath(finalPath string) string {
	return path.Join(path.Dir(finalPath), "."+path.Base(finalPath)+".chunk")
}
