package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/carbocation/pfx"
)

// chunkWriter appends genotype rows to an Arrow IPC file, flushing a record
// batch every chunkSize rows. Two int8 columns are written per sample.
type chunkWriter struct {
	file           *os.File
	schema         *arrow.Schema
	writer         *ipc.FileWriter
	builders       []*array.Int8Builder
	chunkSize      int
	numRowsInChunk int
	rows           int
}

func newChunkWriter(filePath string, samples []Sample, chunkSize int, kind Kind) (*chunkWriter, error) {
	pool := memory.NewGoAllocator()

	fields := make([]arrow.Field, 0, 2*len(samples))
	for _, s := range samples {
		fields = append(fields,
			arrow.Field{Name: s.ID + "_0", Type: arrow.PrimitiveTypes.Int8},
			arrow.Field{Name: s.ID + "_1", Type: arrow.PrimitiveTypes.Int8},
		)
	}

	md := arrow.NewMetadata(
		[]string{"kind", "chunk_size"},
		[]string{kind.String(), strconv.Itoa(chunkSize)},
	)
	schema := arrow.NewSchema(fields, &md)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, pfx.Err(err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, pfx.Err(err)
	}

	writer, err := ipc.NewFileWriter(file, ipc.WithSchema(schema), ipc.WithAllocator(pool), ipc.WithZstd())
	if err != nil {
		file.Close()
		return nil, pfx.Err(err)
	}

	builders := make([]*array.Int8Builder, len(fields))
	for i := range fields {
		builders[i] = array.NewInt8Builder(pool)
	}

	return &chunkWriter{
		file:      file,
		schema:    schema,
		writer:    writer,
		builders:  builders,
		chunkSize: chunkSize,
	}, nil
}

func (cw *chunkWriter) Write(calls []int8) error {
	if len(calls) != len(cw.builders) {
		return fmt.Errorf("mismatch in number of genotype calls: expected %d, got %d", len(cw.builders), len(calls))
	}

	for i, val := range calls {
		cw.builders[i].Append(val)
	}

	cw.numRowsInChunk++
	cw.rows++

	if cw.numRowsInChunk == cw.chunkSize {
		return cw.writeChunk()
	}

	return nil
}

func (cw *chunkWriter) writeChunk() error {
	cols := make([]arrow.Array, len(cw.builders))
	for i, b := range cw.builders {
		// NewArray creates a new array from the builder and resets the builder
		cols[i] = b.NewArray()
	}

	record := array.NewRecord(cw.schema, cols, int64(cw.numRowsInChunk))
	defer record.Release()
	for _, c := range cols {
		c.Release()
	}

	if err := cw.writer.Write(record); err != nil {
		return pfx.Err(err)
	}

	cw.numRowsInChunk = 0

	return nil
}

func (cw *chunkWriter) Close() error {
	if cw.numRowsInChunk > 0 {
		if err := cw.writeChunk(); err != nil {
			cw.file.Close()
			return err
		}
	}

	for _, b := range cw.builders {
		b.Release()
	}

	if err := cw.writer.Close(); err != nil {
		cw.file.Close()
		return pfx.Err(err)
	}

	if err := cw.file.Close(); err != nil {
		return pfx.Err(err)
	}

	return nil
}
