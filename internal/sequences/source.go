package sequences

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Source yields the files of a sequencing results upload.
type Source interface {
	// Walk calls fn for every regular file in order. Names are slash
	// separated paths relative to the source root.
	Walk(fn func(name string, content []byte) error) error
}

// FromPath opens a directory or a zip archive on disk.
func FromPath(path string) (Source, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return dirSource{root: path}, nil
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &zipSource{reader: &zr.Reader, closer: zr}, nil
}

// FromBytes reads an in-memory zip archive.
func FromBytes(data []byte) (Source, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &zipSource{reader: zr}, nil
}

type dirSource struct {
	root string
}

func (d dirSource) Walk(fn func(string, []byte) error) error {
	return filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), content)
	})
}

type zipSource struct {
	reader *zip.Reader
	closer io.Closer
}

// macOS archives carry resource forks under this directory.
const resourceForkDir = "__MACOSX/"

func (z *zipSource) Walk(fn func(string, []byte) error) error {
	if z.closer != nil {
		defer z.closer.Close()
	}
	for _, f := range z.reader.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, resourceForkDir) {
			continue
		}
		content, err := readZipFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		if err := fn(f.Name, content); err != nil {
			return err
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
