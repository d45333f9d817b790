package tabfile

import (
	"bytes"
	"io"
	"testing"

	"github.com/xuri/excelize/v2"
)

func xlsxBytes(t *testing.T, headers []string, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		sheet = "Sheet1"
	}
	for i, h := range headers {
		axis, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, axis, h)
	}
	for r := 0; r < len(rows); r++ {
		for c := 0; c < len(rows[r]); c++ {
			axis, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, axis, rows[r][c])
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestOpenCSV(t *testing.T) {
	data := []byte("dealer_code,Dealer_Name,state\nDLR001,Acme Motors,MH\nDLR002,Beta Auto,KA\n")
	rd, err := Open(data)
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer func() { _ = rd.Close() }()

	want := []string{"dealer_code", "dealer_name", "state"}
	got := rd.Headers()
	if len(got) != len(want) {
		t.Fatalf("headers=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("headers=%v want=%v", got, want)
		}
	}

	row, err := rd.Next()
	if err != nil {
		t.Fatal(err)
	}
	if row.Ordinal != 2 {
		t.Fatalf("first data row ordinal=%d want=2", row.Ordinal)
	}
	if row.Fields["dealer_name"] != "Acme Motors" {
		t.Fatalf("fields=%v", row.Fields)
	}

	row, err = rd.Next()
	if err != nil || row.Ordinal != 3 {
		t.Fatalf("second row ordinal=%d err=%v", row.Ordinal, err)
	}
	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestOpenCSVShortRowPadded(t *testing.T) {
	data := []byte("a,b,c\n1,2\n")
	rd, err := Open(data)
	if err != nil {
		t.Fatal(err)
	}
	row, err := rd.Next()
	if err != nil {
		t.Fatal(err)
	}
	if row.Fields["c"] != "" {
		t.Fatalf("missing column should be empty, got %q", row.Fields["c"])
	}
}

func TestOpenXLSX(t *testing.T) {
	data := xlsxBytes(t,
		[]string{"dealer_code", "base_amount"},
		[][]string{
			{"DLR001", "200000"},
			{"DLR002", "50000"},
		},
	)
	rd, err := Open(data)
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer func() { _ = rd.Close() }()

	rows, err := ReadAll(rd)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d want=2", len(rows))
	}
	if rows[0].Fields["base_amount"] != "200000" || rows[1].Ordinal != 3 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestOpenEmpty(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestOpenLegacyXLSRejected(t *testing.T) {
	ole2 := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00, 0x00}
	if _, err := Open(ole2); err == nil {
		t.Fatal("expected error for OLE2 container")
	}
}

func TestDuplicateHeadersDeduped(t *testing.T) {
	data := []byte("code,code,\nx,y,z\n")
	rd, err := Open(data)
	if err != nil {
		t.Fatal(err)
	}
	h := rd.Headers()
	if h[0] != "code" || h[1] != "code.1" || h[2] != "column_3" {
		t.Fatalf("headers=%v", h)
	}
}
