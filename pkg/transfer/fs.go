package transfer

import "github.com/spf13/afero"

// fs is the filesystem files are read from. It's overridden in unit tests to
// hash and chunk in-memory files.
var fs = afero.NewOsFs()
