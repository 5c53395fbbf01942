package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/taxonomia/internal/models"
)

const (
	itemsSheet        = "Items"
	distributionSheet = "Distribution"
	dateLayout        = "2006-01-02 15:04"
)

// ExportFilename returns the download name for one analysis: whitespace runs in the
// title become underscores.
func ExportFilename(title, ext string) string {
	name := strings.Join(strings.Fields(title), "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '"', '*', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "instrument"
	}
	return name + "_analysis" + ext
}

// WriteJSON writes a as indented JSON.
func WriteJSON(w io.Writer, a *models.InstrumentAnalysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// WriteWorkbook writes an xlsx workbook with one row per item and the combined level distribution.
func WriteWorkbook(w io.Writer, analyses []*models.InstrumentAnalysis) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", itemsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header := []interface{}{"Instrument", "Subject", "Grade", "Date", "Item", "Bloom level"}
	if err := f.SetSheetRow(itemsSheet, "A1", &header); err != nil {
		return err
	}
	row := 2
	for _, a := range analyses {
		for _, it := range a.Items {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			values := []interface{}{
				a.InstrumentTitle,
				string(a.Subject),
				string(a.GradeLevel),
				a.AnalysisDate.Format(dateLayout),
				it.ItemText,
				string(it.BloomLevel),
			}
			if err := f.SetSheetRow(itemsSheet, cell, &values); err != nil {
				return err
			}
			row++
		}
	}

	if _, err := f.NewSheet(distributionSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	distHeader := []interface{}{"Bloom level", "Items", "Percentage"}
	if err := f.SetSheetRow(distributionSheet, "A1", &distHeader); err != nil {
		return err
	}
	for i, p := range Aggregate(Flatten(analyses)) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{string(p.Name), p.Value, p.Percentage}
		if err := f.SetSheetRow(distributionSheet, cell, &values); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
