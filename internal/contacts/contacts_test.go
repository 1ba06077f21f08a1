package contacts

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, ref, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestParse_Workbook(t *testing.T) {
	buf := workbook(t, [][]any{
		{"name", "phoneno", "email"},
		{"A", "9876543210", "a@x.com"},
		{"B", "", "b@x.com"},
	})

	got, err := Parse(buf, "contacts.xlsx")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(got))
	}
	if got[0].Phone == nil || *got[0].Phone != "9876543210" || got[0].Email != "a@x.com" {
		t.Fatalf("unexpected first contact: %+v", got[0])
	}
	if got[1].Phone != nil || got[1].Name != "B" {
		t.Fatalf("expected B without phone, got %+v", got[1])
	}
}

func TestParse_CSVHeaderAliases(t *testing.T) {
	in := "Name,Tel,Email\nA,+19876543210,a@x.com\n,,\n"
	_, err := Parse(strings.NewReader(in), "c.csv")
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn for unknown header, got %v", err)
	}

	in = "Name,Phone Number,Email\nA,+19876543210,a@x.com\n,,\n"
	got, err := Parse(strings.NewReader(in), "c.csv")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || *got[0].Phone != "+19876543210" {
		t.Fatalf("unexpected contacts: %+v", got)
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	if _, err := Parse(strings.NewReader("x"), "c.pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPhoneCell(t *testing.T) {
	cases := map[string]string{
		"9.87654321E+09": "9876543210",
		"9876543210.0":   "9876543210",
		" 9876543210 ":   "9876543210",
		"'09876543210":   "09876543210",
		"+19876543210":   "+19876543210",
		"98765-43210":    "98765-43210",
		"":               "",
	}
	for in, want := range cases {
		if got := PhoneCell(in); got != want {
			t.Fatalf("PhoneCell(%q): expected %q, got %q", in, want, got)
		}
	}
}
