package session

import (
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// externalData locates the bytes of a variable stored outside the checkpoint file.
type externalData struct {
	location string
	offset   int64
	length   int64
}

// externalDataReader memory-maps the external data files of a checkpoint, resolved relative to its directory.
// Mappings are cached by location, since variables usually share a few large files.
type externalDataReader struct {
	baseDir  string
	mappings map[string]*mmap.ReaderAt
}

func newExternalDataReader(baseDir string) *externalDataReader {
	return &externalDataReader{
		baseDir:  baseDir,
		mappings: make(map[string]*mmap.ReaderAt),
	}
}

// mapping returns the memory-mapped file for location, mapping it on first use.
func (r *externalDataReader) mapping(location string) (*mmap.ReaderAt, error) {
	if reader, ok := r.mappings[location]; ok {
		return reader, nil
	}
	if !filepath.IsLocal(location) {
		return nil, errors.Errorf("external data location %q must be a relative path within the checkpoint directory", location)
	}
	path := filepath.Join(r.baseDir, location)
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap external data file %q", path)
	}
	r.mappings[location] = reader
	return reader, nil
}

// readInto copies the external bytes of a variable into dst, which must have exactly the stored length.
func (r *externalDataReader) readInto(ext externalData, dst []byte) error {
	if ext.length > 0 && ext.length != int64(len(dst)) {
		return errors.Errorf("external data length %d doesn't match tensor size %d bytes", ext.length, len(dst))
	}
	reader, err := r.mapping(ext.location)
	if err != nil {
		return err
	}
	n, err := reader.ReadAt(dst, ext.offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed to read %d bytes at offset %d from %q", len(dst), ext.offset, ext.location)
	}
	if n != len(dst) {
		return errors.Errorf("read %d bytes but expected %d from %q at offset %d", n, len(dst), ext.location, ext.offset)
	}
	return nil
}

// Close unmaps all files. The reader can't be used afterwards.
func (r *externalDataReader) Close() error {
	var firstErr error
	for location, reader := range r.mappings {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close mmap for %q", location)
		}
	}
	r.mappings = nil
	return firstErr
}
