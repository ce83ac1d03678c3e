// Package datasets loads market data into the columnar table format the
// strategy pipelines execute over. Parquet is the primary format; CSV is
// supported for venues that only export flat files.
package datasets

import (
	"context"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// LoadParquet reads the named numeric columns from a Parquet file into a
// DataTable. Column names are matched exactly against the file schema.
func LoadParquet(ctx context.Context, path string, columns []string) (core.DataTable, error) {
	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to open parquet file")
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to create arrow reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read parquet schema")
	}
	indices := make(map[string]int, len(columns))
	for _, name := range columns {
		fieldIndices := schema.FieldIndices(name)
		if len(fieldIndices) == 0 {
			return nil, errors.WithFields(
				errors.New(errors.ResourceNotFound, "column not found in parquet schema"),
				errors.Fields{"column": name},
			)
		}
		indices[name] = fieldIndices[0]
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read parquet table")
	}
	defer table.Release()

	out := make(core.DataTable, len(columns))
	for _, name := range columns {
		values, err := columnToFloats(table.Column(indices[name]))
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "failed to decode column"),
				errors.Fields{"column": name},
			)
		}
		out[name] = values
	}
	return out, nil
}

// columnToFloats flattens a chunked column of any numeric arrow type.
func columnToFloats(col *arrow.Column) ([]float64, error) {
	values := make([]float64, 0, col.Len())
	for _, chunk := range col.Data().Chunks() {
		switch typed := chunk.(type) {
		case *array.Float64:
			for i := 0; i < typed.Len(); i++ {
				values = append(values, typed.Value(i))
			}
		case *array.Float32:
			for i := 0; i < typed.Len(); i++ {
				values = append(values, float64(typed.Value(i)))
			}
		case *array.Int64:
			for i := 0; i < typed.Len(); i++ {
				values = append(values, float64(typed.Value(i)))
			}
		case *array.Int32:
			for i := 0; i < typed.Len(); i++ {
				values = append(values, float64(typed.Value(i)))
			}
		default:
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "unsupported column type"),
				errors.Fields{"type": chunk.DataType().Name()},
			)
		}
	}
	return values, nil
}
