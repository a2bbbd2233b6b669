package session

import (
	"path/filepath"
	"slices"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/savedmodel-gomlx/internal/togomlx"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// VariableRecord is one row of a checkpoint file.
//
// The value is either stored inline in RawData, or, for large variables, in an external file at Location
// (relative to the checkpoint directory), starting at Offset. Uninitialized variables have neither.
type VariableRecord struct {
	Name        string  `parquet:"name"`
	DType       string  `parquet:"dtype"`
	Dims        []int64 `parquet:"dims"`
	Initialized bool    `parquet:"initialized"`
	RawData     []byte  `parquet:"raw_data"`
	Location    string  `parquet:"location"`
	Offset      int64   `parquet:"offset"`
	Length      int64   `parquet:"length"`
}

// RecordFromTensor creates a record holding t inline.
func RecordFromTensor(name string, t *tensors.Tensor) VariableRecord {
	return VariableRecord{
		Name:        name,
		DType:       t.Shape().DType.String(),
		Dims:        togomlx.Dims(t.Shape()),
		Initialized: true,
		RawData:     togomlx.Bytes(t),
	}
}

// WriteCheckpoint writes the records to a parquet checkpoint file.
func WriteCheckpoint(path string, records []VariableRecord) error {
	if err := parquet.WriteFile(path, records); err != nil {
		return errors.Wrapf(err, "failed to write checkpoint %q", path)
	}
	return nil
}

// Checkpoint is a Session reading the variables of a checkpoint file. Values are decoded lazily, on each
// ValueOf, reading external data through memory-mapped files.
type Checkpoint struct {
	mu       sync.Mutex
	path     string
	records  map[string]*VariableRecord
	external *externalDataReader
}

var _ Session = (*Checkpoint)(nil)

// ReadCheckpoint opens a parquet checkpoint file. Call Checkpoint.Close when done.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	rows, err := parquet.ReadFile[VariableRecord](path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %q", path)
	}
	c := &Checkpoint{
		path:     path,
		records:  make(map[string]*VariableRecord, len(rows)),
		external: newExternalDataReader(filepath.Dir(path)),
	}
	for ii := range rows {
		record := &rows[ii]
		if _, found := c.records[record.Name]; found {
			return nil, errors.Errorf("checkpoint %q has variable %q more than once", path, record.Name)
		}
		c.records[record.Name] = record
	}
	return c, nil
}

// Close releases the memory-mapped external data files.
func (c *Checkpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.external.Close()
}

func (c *Checkpoint) record(name string) (*VariableRecord, error) {
	record, found := c.records[name]
	if !found {
		return nil, errors.Wrapf(ErrUnknownVariable, "checkpoint %q has no variable %q", c.path, name)
	}
	return record, nil
}

// ValueOf implements Session.
func (c *Checkpoint) ValueOf(name string) (*tensors.Tensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, err := c.record(name)
	if err != nil {
		return nil, err
	}
	if !record.Initialized {
		return nil, errors.Wrapf(ErrUninitialized, "checkpoint %q variable %q", c.path, name)
	}
	shape, err := togomlx.Shape(record.DType, record.Dims)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint variable %q", name)
	}
	var t *tensors.Tensor
	if record.Location != "" {
		ext := externalData{location: record.Location, offset: record.Offset, length: record.Length}
		t, err = togomlx.TensorFromFill(shape, func(data []byte) error {
			return c.external.readInto(ext, data)
		})
	} else {
		t, err = togomlx.TensorFromBytes(shape, record.RawData)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint variable %q", name)
	}
	return t, nil
}

// IsInitialized implements Session.
func (c *Checkpoint) IsInitialized(name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, err := c.record(name)
	if err != nil {
		return false, err
	}
	return record.Initialized, nil
}

// ShapeOf implements Session.
func (c *Checkpoint) ShapeOf(name string) (shapes.Shape, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, err := c.record(name)
	if err != nil {
		return shapes.Shape{}, err
	}
	shape, err := togomlx.Shape(record.DType, record.Dims)
	if err != nil {
		return shapes.Shape{}, errors.WithMessagef(err, "checkpoint variable %q", name)
	}
	return shape, nil
}

// Variables implements Session.
func (c *Checkpoint) Variables() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.records))
	for name := range c.records {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
