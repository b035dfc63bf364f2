package transfer

import (
	"context"
	"crypto/md5"
	"crypto/sha512"
	"encoding/hex"
	"io"

	"github.com/datadock/datadock/pkg/errors"
)

// FakeMd5Sum stands in for a real digest when checksum computation is turned
// off. The repository flags the mismatch during verification.
const FakeMd5Sum = "00000000000000000000000000000000"

// checksumBlockSize is how much of the file is read between cancellation
// checks.
const checksumBlockSize = 1024 * 1024

// Checksums holds the digests sent with a datafile descriptor.
type Checksums struct {
	Md5Sum    string
	Sha512Sum string
}

// ComputeChecksums reads the file at path once and produces both digests the
// datafile descriptor carries.
func ComputeChecksums(ctx context.Context, path string) (Checksums, error) {
	file, err := fs.Open(path)
	if err != nil {
		return Checksums{}, errors.WithContext(err, "open file for hashing")
	}
	defer file.Close()

	md5Hash := md5.New()
	sha512Hash := sha512.New()
	sink := io.MultiWriter(md5Hash, sha512Hash)

	buf := make([]byte, checksumBlockSize)
	for {
		if ctx.Err() != nil {
			return Checksums{}, errors.ErrCanceled
		}

		n, err := file.Read(buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				return Checksums{}, errors.WithContext(err, "hash file block")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Checksums{}, errors.WithContext(err, "read file for hashing")
		}
	}

	return Checksums{
		Md5Sum:    hex.EncodeToString(md5Hash.Sum(nil)),
		Sha512Sum: hex.EncodeToString(sha512Hash.Sum(nil)),
	}, nil
}
