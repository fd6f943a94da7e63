// Package storage implements storage-related functionality.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/jittakal/avroconvert/pkg/record"
	"github.com/jittakal/avroconvert/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var _ storage.Router = (*DefaultRouter)(nil)

// DefaultRouter mirrors the input layout under the output root and swaps
// the file extension for the target format's.
type DefaultRouter struct {
	basePath  string
	extension string
}

// NewRouter creates a new output path router.
func NewRouter(basePath string, format record.FileFormat) *DefaultRouter {
	return &DefaultRouter{
		basePath:  basePath,
		extension: format.Extension(),
	}
}

// Route returns the output path for a source-relative identifier.
// Format: basePath/<dir of filename>/<stem>.<ext>
// Leading separators and ".." segments cannot escape basePath.
func (r *DefaultRouter) Route(filename string) string {
	sep := string(filepath.Separator)
	rel := strings.TrimPrefix(filepath.Clean(sep+filepath.FromSlash(filename)), sep)

	return filepath.Join(r.basePath, ReplaceExt(rel, r.extension))
}

// ReplaceExt replaces the last extension of name with ext.
// A name that is only an extension (".avro") keeps it as the stem.
func ReplaceExt(name, ext string) string {
	old := filepath.Ext(name)
	if old == filepath.Base(name) {
		old = ""
	}
	return strings.TrimSuffix(name, old) + ext
}
