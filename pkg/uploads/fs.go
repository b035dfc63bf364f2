package uploads

import "github.com/spf13/afero"

// fs is the filesystem uploads read from. It's overridden in unit tests to
// upload in-memory files.
var fs = afero.NewOsFs()
