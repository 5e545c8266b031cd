package rules

import (
	"path"
	"strings"

	"golang.org/x/text/cases"
)

// ContainsFold reports whether substr is within s under Unicode case
// folding.
func ContainsFold(s, substr string) bool {
	folder := cases.Fold()
	return strings.Contains(folder.String(s), folder.String(substr))
}

// HasExtFold reports whether name has the extension ext (with its dot),
// ignoring case.
func HasExtFold(name, ext string) bool {
	folder := cases.Fold()
	return folder.String(path.Ext(name)) == folder.String(ext)
}

// IsAdminScript reports whether name is a script file whose base name
// signals administrative purpose.
func IsAdminScript(name string) bool {
	base := path.Base(name)
	return HasExtFold(base, ".js") && ContainsFold(base, "admin")
}
