package transfer

// Method selects how a file's bytes reach the repository.
type Method int

const (
	// MethodDirect posts the whole file in one multipart request.
	MethodDirect Method = iota

	// MethodStaging copies the file to the staging host in resumable
	// chunks.
	MethodStaging
)

func (m Method) String() string {
	if m == MethodStaging {
		return "staging"
	}
	return "direct"
}

// Pick returns the transfer method for a file of the given size. Staging is
// only worth the round trips for files above the large-file threshold, and
// requires an approved staging host.
func Pick(fileSize, largeFileSize int64, stagingAvailable bool) Method {
	if stagingAvailable && fileSize > largeFileSize {
		return MethodStaging
	}
	return MethodDirect
}
