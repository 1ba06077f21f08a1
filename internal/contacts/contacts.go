// Package contacts parses operator-uploaded contact sheets.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Contact is one parsed row. Phone is nil when the cell is empty.
type Contact struct {
	Name  string  `json:"name"`
	Phone *string `json:"phoneno"`
	Email string  `json:"email"`
}

var (
	ErrUnsupportedFormat = errors.New("contacts: unsupported file format")
	ErrMissingColumn     = errors.New("contacts: missing phoneno column")
)

var headerAliases = map[string]string{
	"name":         "name",
	"contact_name": "name",
	"phoneno":      "phoneno",
	"phone":        "phoneno",
	"phone_number": "phoneno",
	"phonenumber":  "phoneno",
	"mobile":       "phoneno",
	"email":        "email",
	"e-mail":       "email",
}

// Parse reads .xlsx and .csv sheets with columns name, phoneno, email.
// Only the first worksheet of a workbook is read.
func Parse(r io.Reader, filename string) ([]Contact, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("contacts: open workbook: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		rows, err = f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("contacts: read sheet %q: %w", sheets[0], err)
		}
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		var err error
		rows, err = cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("contacts: read csv: %w", err)
		}
	default:
		return nil, ErrUnsupportedFormat
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]Contact, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	idx := map[string]int{}
	for i, h := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if canon, ok := headerAliases[key]; ok {
			if _, seen := idx[canon]; !seen {
				idx[canon] = i
			}
		}
	}
	if _, ok := idx["phoneno"]; !ok {
		return nil, ErrMissingColumn
	}

	out := make([]Contact, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		c := Contact{
			Name:  cell(row, idx, "name"),
			Email: cell(row, idx, "email"),
		}
		if p := PhoneCell(cell(row, idx, "phoneno")); p != "" {
			c.Phone = &p
		}
		out = append(out, c)
	}
	return out, nil
}

func cell(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// PhoneCell undoes spreadsheet number formatting: "9.87654321E+09" and
// "9876543210.0" both become "9876543210". Other text is returned trimmed.
func PhoneCell(v string) string {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "'"))
	if v == "" || strings.HasPrefix(v, "+") {
		return v
	}
	if !strings.ContainsAny(v, ".eE") {
		return v
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > 1e15 {
		return v
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}
