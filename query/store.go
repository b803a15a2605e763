package query

import (
	"embed"
	"errors"
	"io/fs"
	"path"
	"strings"
)

//go:embed sql
var embedded embed.FS

// Templates holds the statement set shipped with the binary, laid out as
// <dialect>/<resource>.sql.
var Templates fs.FS = mustSub(embedded, "sql")

// Resource is the stable id of one statement template.
type Resource string

// Store resolves resources for one dialect across an ordered list of file
// systems. The first layer holding a resource wins.
type Store struct {
	dialect Dialect
	layers  []fs.FS
}

// NewStore returns a store for the dialect. Without layers it reads the
// embedded Templates.
func NewStore(dialect Dialect, layers ...fs.FS) *Store {
	if len(layers) == 0 {
		layers = []fs.FS{Templates}
	}
	return &Store{dialect: dialect, layers: layers}
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Load returns the raw statement text of a resource.
func (s *Store) Load(id Resource) (string, error) {
	name := path.Join(s.dialect.Name, string(id)+".sql")
	for _, layer := range s.layers {
		raw, err := fs.ReadFile(layer, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", &LoadError{Resource: id, Path: name, Err: err}
		}
		if strings.TrimSpace(string(raw)) == "" {
			return "", &LoadError{Resource: id, Path: name, Err: ErrEmptyTemplate}
		}
		return string(raw), nil
	}
	return "", &LoadError{Resource: id, Path: name, Err: fs.ErrNotExist}
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
