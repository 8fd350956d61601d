// Package contacts reads and normalizes the campaign's contact list.
package contacts

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mdmestre/enroller/pkg/api"
)

var _ api.ContactSource = (*FileSource)(nil)

// FileSource reads contacts from a spreadsheet or a plain text file.
//
// An .xlsx workbook is read from its first sheet. The first row is a header:
// the column whose header contains "num" (case-insensitive) is used, otherwise
// the first column. Any file that is not a workbook is read as text, one
// number per line.
//
// Numbers listed in OptOutPath (text, one per line) are never returned.
type FileSource struct {
	Path       string
	OptOutPath string
	Normalizer Normalizer
	Logger     *slog.Logger
}

// List returns the normalized, deduplicated contacts in file order.
func (s *FileSource) List(ctx context.Context) ([]string, error) {
	raw, err := readValues(s.Path)
	if err != nil {
		return nil, err
	}

	ids, dropped := s.Normalizer.NormalizeAll(raw)
	if dropped > 0 && s.Logger != nil {
		s.Logger.WarnContext(ctx, "contacts_dropped",
			slog.String("path", s.Path),
			slog.Int("dropped", dropped),
		)
	}

	optOut, err := s.optOut()
	if err != nil {
		return nil, err
	}
	if len(optOut) == 0 {
		return ids, nil
	}

	out := ids[:0]
	for _, id := range ids {
		if _, skip := optOut[id]; !skip {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *FileSource) optOut() (map[string]struct{}, error) {
	if s.OptOutPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.OptOutPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read opt-out list: %w", err)
	}

	ids, _ := s.Normalizer.NormalizeAll(splitLines(data))
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func readValues(path string) ([]string, error) {
	values, err := readWorkbook(path)
	if err == nil {
		return values, nil
	}

	data, textErr := os.ReadFile(path)
	if textErr != nil {
		return nil, fmt.Errorf("read contacts %s as workbook (%v) or text: %w", path, err, textErr)
	}
	return splitLines(data), nil
}

func readWorkbook(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := numberColumn(rows[0])
	values := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col < len(row) {
			values = append(values, row[col])
		}
	}
	return values, nil
}

func numberColumn(header []string) int {
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), "num") {
			return i
		}
	}
	return 0
}

func splitLines(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
