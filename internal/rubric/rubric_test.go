package rubric

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseCSVSplitsOnUnquotedCommas(t *testing.T) {
	t.Parallel()

	input := "Criteria,Excellent,Poor\n" +
		"Clarity,\"Clear, concise writing\",Muddled\n" +
		"\n" +
		"Evidence,Strong sources,None\n"

	grid := ParseCSV(input)
	expected := [][]string{
		{"Criteria", "Excellent", "Poor"},
		{"Clarity", "Clear, concise writing", "Muddled"},
		{"Evidence", "Strong sources", "None"},
	}
	if !reflect.DeepEqual(grid, expected) {
		t.Fatalf("expected %v, got %v", expected, grid)
	}
}

func TestToCSVQuotesSpecialFields(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"Criteria", "Excellent"},
		{"Clarity", `Uses "precise" wording, always`},
	}
	output := ToCSV(grid)
	expected := "Criteria,Excellent\n" +
		`Clarity,"Uses ""precise"" wording, always"`
	if output != expected {
		t.Fatalf("expected %q, got %q", expected, output)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"Criteria", "A", "B"},
		{"Clarity", "Good, clear", "Poor"},
	}
	parsed := ParseCSV(ToCSV(grid))
	if !reflect.DeepEqual(parsed, grid) {
		t.Fatalf("expected %v, got %v", grid, parsed)
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"Criteria", "Excellent", "Poor"},
		{"Clarity", "Clear", "Muddled"},
		{"Evidence", "Strong", "Weak"},
	}
	data, writeErr := ToXLSX(grid)
	if writeErr != nil {
		t.Fatalf("unexpected write error: %v", writeErr)
	}
	parsed, parseErr := ParseXLSX(data)
	if parseErr != nil {
		t.Fatalf("unexpected parse error: %v", parseErr)
	}
	if !reflect.DeepEqual(parsed, grid) {
		t.Fatalf("expected %v, got %v", grid, parsed)
	}
}

func TestConvertFileDropsEmptyRowsAndValidates(t *testing.T) {
	t.Parallel()

	input := "Criteria,A,B\n,,\nClarity,Good,Poor\n"
	grid, err := ConvertFile("rubric.csv", []byte(input))
	if err != nil {
		t.Fatalf("unexpected convert error: %v", err)
	}
	expected := [][]string{
		{"Criteria", "A", "B"},
		{"Clarity", "Good", "Poor"},
	}
	if !reflect.DeepEqual(grid, expected) {
		t.Fatalf("expected %v, got %v", expected, grid)
	}
}

func TestConvertFileRejectsUnsupportedExtension(t *testing.T) {
	t.Parallel()

	if _, err := ConvertFile("rubric.pdf", []byte("whatever")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestValidateShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		grid      [][]string
		expectErr error
	}{
		{
			name:      "too few rows",
			grid:      [][]string{{"Criteria", "A"}},
			expectErr: ErrTooSmall,
		},
		{
			name:      "too few columns",
			grid:      [][]string{{"Criteria"}, {"Clarity"}},
			expectErr: ErrTooSmall,
		},
		{
			name:      "missing grade headers",
			grid:      [][]string{{"Criteria", "", ""}, {"Clarity", "Good", "Poor"}},
			expectErr: ErrMissingGradeHeaders,
		},
		{
			name:      "missing criteria headers",
			grid:      [][]string{{"Criteria", "A", "B"}, {"", "Good", "Poor"}},
			expectErr: ErrMissingCriteriaHeaders,
		},
		{
			name: "valid",
			grid: [][]string{{"Criteria", "A", "B"}, {"Clarity", "Good", "Poor"}},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(testCase.grid)
			if testCase.expectErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, testCase.expectErr) {
				t.Fatalf("expected %v, got %v", testCase.expectErr, err)
			}
		})
	}
}
