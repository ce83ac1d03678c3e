package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// LoadCSV reads the named numeric columns from a headered CSV file into a
// DataTable. Non-numeric cells in a requested column are an error; extra
// columns in the file are ignored.
func LoadCSV(path string, columns []string) (core.DataTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to open csv file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read csv header")
	}

	indices := make(map[string]int, len(columns))
	for _, name := range columns {
		found := false
		for i, field := range header {
			if field == name {
				indices[name] = i
				found = true
				break
			}
		}
		if !found {
			return nil, errors.WithFields(
				errors.New(errors.ResourceNotFound, "column not found in csv header"),
				errors.Fields{"column": name},
			)
		}
	}

	out := make(core.DataTable, len(columns))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.InvalidInput, "failed to read csv row")
		}
		for _, name := range columns {
			value, err := strconv.ParseFloat(record[indices[name]], 64)
			if err != nil {
				return nil, errors.WithFields(
					errors.New(errors.InvalidInput, "non-numeric cell in requested column"),
					errors.Fields{"column": name, "cell": record[indices[name]]},
				)
			}
			out[name] = append(out[name], value)
		}
	}

	if out.Rows() == 0 {
		return nil, errors.New(errors.InvalidInput, "csv file has no data rows")
	}
	return out, nil
}
