// Package sc reads the serialized single-cell inputs: the raw gene x cell
// count matrix, the per-cell metadata table, and the sample table. All three
// are tab-separated text; the count matrix may be gzip-compressed.
package sc

import (
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"pseudobulk/domain/core"
	"pseudobulk/domain/expr"
	"pseudobulk/internal/errors"
)

// ReadCounts loads a gene x cell count matrix. The header row is
// "Symbol<TAB>barcode1<TAB>barcode2..."; each following row is a gene symbol
// and its per-cell counts.
func ReadCounts(path string) (*expr.CountMatrix, error) {
	reader, closeFn, err := openTSV(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "reading count matrix header from %s", path)
	}
	if len(header) < 2 {
		return nil, errors.InputValidationf("count matrix %s has no cell columns", path)
	}

	barcodes := make([]core.Barcode, len(header)-1)
	for j, h := range header[1:] {
		barcodes[j] = core.Barcode(strings.TrimSpace(h))
	}

	var genes []core.GeneSymbol
	var data [][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading count matrix row %d", len(genes)+2)
		}
		if len(record) != len(header) {
			return nil, errors.InputValidationf("count matrix row %d has %d fields, expected %d", len(genes)+2, len(record), len(header))
		}
		genes = append(genes, core.GeneSymbol(record[0]))
		row := make([]float64, len(barcodes))
		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.InputValidationf("count matrix gene %s, cell %s: bad count %q", record[0], barcodes[j], field)
			}
			row[j] = v
		}
		data = append(data, row)
	}

	matrix, err := expr.NewCountMatrix(genes, barcodes, data)
	if err != nil {
		return nil, errors.InputValidationf("invalid count matrix %s: %v", path, err)
	}
	return matrix, nil
}

// ReadCellMeta loads the per-cell metadata table. Required columns: barcode,
// sample, and the configured grouping column (normally "cluster"); the
// optional condition, sex and age columns are carried when present.
func ReadCellMeta(path, groupColumn string) (*expr.CellTable, error) {
	reader, closeFn, err := openTSV(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "reading cell metadata header from %s", path)
	}
	col := indexColumns(header)

	for _, required := range []string{"barcode", "sample", groupColumn} {
		if _, ok := col[required]; !ok {
			return nil, errors.InputValidationf("cell metadata %s lacks required column %q", path, required)
		}
	}

	var cells []expr.CellMeta
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading cell metadata row %d", len(cells)+2)
		}
		cells = append(cells, expr.CellMeta{
			Barcode:   core.Barcode(field(record, col, "barcode")),
			Sample:    core.SampleName(field(record, col, "sample")),
			Cluster:   core.ClusterID(field(record, col, groupColumn)),
			Condition: field(record, col, "condition"),
			Sex:       field(record, col, "sex"),
			Age:       field(record, col, "age"),
		})
	}

	table, err := expr.NewCellTable(cells)
	if err != nil {
		return nil, errors.InputValidationf("invalid cell metadata %s: %v", path, err)
	}
	return table, nil
}

// ReadSampleTable loads the sample annotation table. The first column is the
// sample name; every other column becomes an attribute.
func ReadSampleTable(path string) (*expr.SampleTable, error) {
	reader, closeFn, err := openTSV(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "reading sample table header from %s", path)
	}
	if len(header) == 0 {
		return nil, errors.InputValidationf("sample table %s has an empty header", path)
	}

	samples := make(map[core.SampleName]expr.SampleInfo)
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading sample table row %d", rowNum+1)
		}
		rowNum++
		name := core.SampleName(strings.TrimSpace(record[0]))
		if name == "" {
			return nil, errors.InputValidationf("sample table row %d has an empty sample name", rowNum)
		}
		attrs := make(map[string]string, len(header)-1)
		for j := 1; j < len(header) && j < len(record); j++ {
			attrs[header[j]] = record[j]
		}
		samples[name] = expr.SampleInfo{Name: name, Attributes: attrs}
	}

	return &expr.SampleTable{Samples: samples}, nil
}

// openTSV opens a tab-separated file, transparently handling gzip by
// extension. The csv reader is lenient about quoting, matching the loosely
// formatted matrices these tools emit.
func openTSV(path string) (*csv.Reader, func(), error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}

	var src io.Reader = file
	closeFn := func() { file.Close() }
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, errors.Wrapf(err, "opening gzip stream of %s", path)
		}
		src = gz
		closeFn = func() {
			gz.Close()
			file.Close()
		}
	}

	reader := csv.NewReader(src)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader, closeFn, nil
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[strings.ToLower(name)]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
