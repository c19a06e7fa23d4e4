package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DecodeXLSX renders each sheet as a titled section with one line per row.
func DecodeXLSX(raw []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	var b strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# ")
		b.WriteString(sheet)
		b.WriteString("\n\n")
		writeRows(&b, rows)
	}
	return strings.TrimSpace(b.String()), nil
}

// DecodeCSV renders rows as "header: value" pairs when the first row looks
// like a header, so each line reads on its own.
func DecodeCSV(raw []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}

	var b strings.Builder
	writeRows(&b, rows)
	return strings.TrimSpace(b.String()), nil
}

func writeRows(b *strings.Builder, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	header := rows[0]
	labelled := len(rows) > 1 && isHeader(header)
	if !labelled {
		writeCells(b, header, nil)
	}
	for _, row := range rows[1:] {
		if labelled {
			writeCells(b, row, header)
		} else {
			writeCells(b, row, nil)
		}
	}
}

func writeCells(b *strings.Builder, row, header []string) {
	parts := make([]string, 0, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			cell = strings.TrimSpace(header[i]) + ": " + cell
		}
		parts = append(parts, cell)
	}
	if len(parts) == 0 {
		return
	}
	b.WriteString(strings.Join(parts, "; "))
	b.WriteString("\n")
}

func isHeader(row []string) bool {
	filled := 0
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		filled++
		if strings.ContainsAny(cell, "0123456789") && strings.Trim(cell, "0123456789.,-+ ") == "" {
			return false
		}
	}
	return filled > 0
}
