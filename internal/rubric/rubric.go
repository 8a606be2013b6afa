// Package rubric converts grading rubrics between CSV/XLSX files and the
// grid form the platform works with: a 2D table whose first row holds
// grade headers and whose first column holds criteria headers.
package rubric

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat indicates a file that is neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("rubric.unsupported_format")
	// ErrTooSmall indicates a grid smaller than 2x2.
	ErrTooSmall = errors.New("rubric.too_small")
	// ErrMissingGradeHeaders indicates an empty first row past the corner cell.
	ErrMissingGradeHeaders = errors.New("rubric.missing_grade_headers")
	// ErrMissingCriteriaHeaders indicates an empty first column past the corner cell.
	ErrMissingCriteriaHeaders = errors.New("rubric.missing_criteria_headers")
)

// ParseCSV converts raw CSV text to a grid. Fields are split on commas
// outside double quotes; blank lines are dropped and fields trimmed.
func ParseCSV(csvText string) [][]string {
	var grid [][]string
	for _, line := range strings.Split(csvText, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var row []string
		var current strings.Builder
		inQuotes := false
		for _, character := range line {
			switch {
			case character == '"':
				inQuotes = !inQuotes
			case character == ',' && !inQuotes:
				row = append(row, strings.TrimSpace(current.String()))
				current.Reset()
			default:
				current.WriteRune(character)
			}
		}
		row = append(row, strings.TrimSpace(current.String()))
		grid = append(grid, row)
	}
	return grid
}

// ToCSV serializes a grid. Fields containing commas, quotes, or newlines
// are quoted with embedded quotes doubled.
func ToCSV(grid [][]string) string {
	lines := make([]string, 0, len(grid))
	for _, row := range grid {
		fields := make([]string, 0, len(row))
		for _, cell := range row {
			escaped := strings.ReplaceAll(cell, `"`, `""`)
			if strings.ContainsAny(escaped, ",\n\"") {
				escaped = `"` + escaped + `"`
			}
			fields = append(fields, escaped)
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return strings.Join(lines, "\n")
}

// ParseXLSX extracts the first worksheet as a grid of trimmed strings.
func ParseXLSX(data []byte) ([][]string, error) {
	workbook, openErr := excelize.OpenReader(bytes.NewReader(data))
	if openErr != nil {
		return nil, fmt.Errorf("rubric.xlsx.open: %w", openErr)
	}
	defer func() { _ = workbook.Close() }()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("rubric.xlsx.sheets: %w", ErrTooSmall)
	}
	rows, rowsErr := workbook.GetRows(sheets[0])
	if rowsErr != nil {
		return nil, fmt.Errorf("rubric.xlsx.rows: %w", rowsErr)
	}
	grid := make([][]string, 0, len(rows))
	for _, row := range rows {
		cleaned := make([]string, 0, len(row))
		for _, cell := range row {
			cleaned = append(cleaned, strings.TrimSpace(cell))
		}
		grid = append(grid, cleaned)
	}
	return grid, nil
}

// ToXLSX serializes a grid onto a single "Rubric" worksheet.
func ToXLSX(grid [][]string) ([]byte, error) {
	workbook := excelize.NewFile()
	defer func() { _ = workbook.Close() }()

	const sheetName = "Rubric"
	index, sheetErr := workbook.NewSheet(sheetName)
	if sheetErr != nil {
		return nil, fmt.Errorf("rubric.xlsx.sheet: %w", sheetErr)
	}
	workbook.SetActiveSheet(index)
	if deleteErr := workbook.DeleteSheet("Sheet1"); deleteErr != nil {
		return nil, fmt.Errorf("rubric.xlsx.sheet: %w", deleteErr)
	}
	for rowIndex, row := range grid {
		cell, cellErr := excelize.CoordinatesToCellName(1, rowIndex+1)
		if cellErr != nil {
			return nil, fmt.Errorf("rubric.xlsx.cell: %w", cellErr)
		}
		values := make([]interface{}, len(row))
		for columnIndex, value := range row {
			values[columnIndex] = value
		}
		if writeErr := workbook.SetSheetRow(sheetName, cell, &values); writeErr != nil {
			return nil, fmt.Errorf("rubric.xlsx.row: %w", writeErr)
		}
	}
	buffer, writeErr := workbook.WriteToBuffer()
	if writeErr != nil {
		return nil, fmt.Errorf("rubric.xlsx.write: %w", writeErr)
	}
	return buffer.Bytes(), nil
}

// ConvertFile parses a rubric file by extension, drops rows with no
// content, and validates the resulting grid shape.
func ConvertFile(fileName string, data []byte) ([][]string, error) {
	var grid [][]string
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		grid = ParseCSV(string(data))
	case ".xlsx", ".xls":
		parsed, parseErr := ParseXLSX(data)
		if parseErr != nil {
			return nil, parseErr
		}
		grid = parsed
	default:
		return nil, fmt.Errorf("rubric.convert.%s: %w", fileName, ErrUnsupportedFormat)
	}

	cleaned := make([][]string, 0, len(grid))
	for _, row := range grid {
		hasContent := false
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				hasContent = true
				break
			}
		}
		if hasContent {
			cleaned = append(cleaned, row)
		}
	}
	if validateErr := Validate(cleaned); validateErr != nil {
		return nil, validateErr
	}
	return cleaned, nil
}

// Validate checks the minimum rubric shape: at least 2x2 with grade
// headers across the first row and criteria headers down the first column.
func Validate(grid [][]string) error {
	if len(grid) < 2 || len(grid[0]) < 2 {
		return ErrTooSmall
	}
	hasGradeHeaders := false
	for columnIndex, cell := range grid[0] {
		if columnIndex > 0 && strings.TrimSpace(cell) != "" {
			hasGradeHeaders = true
			break
		}
	}
	if !hasGradeHeaders {
		return ErrMissingGradeHeaders
	}
	hasCriteriaHeaders := false
	for rowIndex, row := range grid {
		if rowIndex > 0 && len(row) > 0 && strings.TrimSpace(row[0]) != "" {
			hasCriteriaHeaders = true
			break
		}
	}
	if !hasCriteriaHeaders {
		return ErrMissingCriteriaHeaders
	}
	return nil
}
