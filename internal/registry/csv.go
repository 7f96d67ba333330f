package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"bundle-dupscan/internal/fsatomic"
)

// Column labels of the second header row, also used to name columns in
// ParseError.
var columns = []string{
	"asset", "isMarked", "memSize", "canSaveMemSize", "count", "containingABs", "directContainingAssets",
}

const headerRows = 2

// SaveToCsv writes the summary header, the column header and one row per
// record in current order. Call Sort first for a ranked report. The file is
// replaced atomically and carries no byte-order mark.
func (r *Registry) SaveToCsv(path string) error {
	s, ok := r.Summary()
	if !ok {
		s = r.Sum()
	}
	return fsatomic.WriteFile(path, func(w io.Writer) error {
		return r.writeCsv(w, s)
	})
}

func (r *Registry) writeCsv(w io.Writer, s Summary) error {
	cw := csv.NewWriter(w)
	header := []string{
		"asset",
		"isMarked",
		"allMem=" + ReadableSize(s.AllSize),
		"canSave=" + ReadableSize(s.CanSaveSum),
		"percent=" + s.CanSavePercent,
		"count=" + strconv.Itoa(s.Count),
		"",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, ai := range r.sorted {
		if err := cw.Write(ai.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record renders ai as one data row, in column order.
func (ai *AssetInfo) Record() []string {
	marked := "0"
	if ai.IsMarked {
		marked = "1"
	}
	return []string{
		ai.Asset,
		marked,
		strconv.FormatInt(ai.MemSize, 10),
		strconv.FormatInt(ai.CanSaveMemSize, 10),
		strconv.Itoa(ai.ContainingABCount),
		ai.ContainingABs.Join(SetSeparator),
		ai.DirectContainingAssets.Join(SetSeparator),
	}
}

// LoadFromCsv replaces the contents with the records of a saved report and
// recomputes the summary. Row order is kept as found in the file; call Sort
// to re-rank. On error the registry is left as it was.
func (r *Registry) LoadFromCsv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	loaded := New()
	if err := loaded.readCsv(path, f); err != nil {
		return err
	}
	loaded.Sum()
	*r = *loaded
	return nil
}

func (r *Registry) readCsv(path string, rd io.Reader) error {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return &ParseError{Path: path, Line: line, Err: err}
		}
		if line <= headerRows {
			continue
		}
		ai, err := parseRow(rec)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Path, pe.Line = path, line
				return pe
			}
			return &ParseError{Path: path, Line: line, Err: err}
		}
		if err := r.Add(ai); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	if line < headerRows {
		return &ParseError{Path: path, Line: line, Err: fmt.Errorf("missing header rows (want %d, got %d)", headerRows, line)}
	}
	return nil
}

func parseRow(rec []string) (*AssetInfo, error) {
	if len(rec) != len(columns) {
		return nil, &ParseError{Err: fmt.Errorf("want %d columns, got %d", len(columns), len(rec))}
	}
	if rec[0] == "" {
		return nil, &ParseError{Column: columns[0], Err: errors.New("empty asset id")}
	}
	ai := NewAssetInfo(rec[0], false)
	switch rec[1] {
	case "1":
		ai.IsMarked = true
	case "0":
	default:
		return nil, &ParseError{Column: columns[1], Err: fmt.Errorf("want 1 or 0, got %q", rec[1])}
	}

	var err error
	if ai.MemSize, err = strconv.ParseInt(rec[2], 10, 64); err != nil {
		return nil, &ParseError{Column: columns[2], Err: err}
	}
	if ai.CanSaveMemSize, err = strconv.ParseInt(rec[3], 10, 64); err != nil {
		return nil, &ParseError{Column: columns[3], Err: err}
	}
	if ai.ContainingABCount, err = strconv.Atoi(rec[4]); err != nil {
		return nil, &ParseError{Column: columns[4], Err: err}
	}
	ai.ContainingABs = ParseSet(rec[5], SetSeparator)
	ai.DirectContainingAssets = ParseSet(rec[6], SetSeparator)
	return ai, nil
}
