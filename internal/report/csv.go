package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gateway-fm/gasbench/internal/bench"
)

// Row is one CSV data row: (contract name, index, gas used, transaction id).
type Row struct {
	Contract string
	Index    int
	GasUsed  uint64
	TxHash   string
}

// csvHeader matches the original report format.
var csvHeader = []string{"contract", "i", "gas", "txhash"}

// RowsFromResults converts a contract's benchmark results into CSV rows.
func RowsFromResults(contractName string, results []bench.Result) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			Contract: contractName,
			Index:    r.Index,
			GasUsed:  r.GasUsed,
			TxHash:   r.TxHash,
		}
	}
	return rows
}

// WriteCSV writes the header plus one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.Contract,
			strconv.Itoa(row.Index),
			strconv.FormatUint(row.GasUsed, 10),
			row.TxHash,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes rows to path, creating the parent directory if needed.
func SaveCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteCSV(f, rows); err != nil {
		return err
	}

	return f.Close()
}
