package scan

import "github.com/spf13/afero"

// fs is the filesystem used by the scanner. It's overridden in unit tests to
// scan an in-memory filesystem.
var fs = afero.NewOsFs()
