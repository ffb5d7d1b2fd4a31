package utils

import (
	"fmt"
	"io"
	"sort"
	"time"

	"voeventdb/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	packetsSheet = "Packets"
	rolesSheet   = "Roles"
	infoSheet    = "Info"
	timeLayout   = "2006-01-02 15:04:05"
)

// SummaryReport is the content of an exported workbook.
type SummaryReport struct {
	Rows        []models.PacketSummary
	RoleCounts  map[string]int64
	QueryString string
	Generated   time.Time
}

// WriteSummaryWorkbook renders report as an xlsx workbook: the packet listing,
// a role breakdown with a chart, and an info sheet.
func WriteSummaryWorkbook(w io.Writer, report SummaryReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", packetsSheet); err != nil {
		return err
	}
	if err := writePackets(f, report.Rows); err != nil {
		return err
	}
	if err := writeRoles(f, report.RoleCounts); err != nil {
		return err
	}
	if err := writeInfo(f, report); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writePackets(f *excelize.File, rows []models.PacketSummary) error {
	headers := []string{"ID", "IVORN", "Stream", "Role", "Version", "Author IVORN", "Authored (UTC)", "Received (UTC)"}
	if err := f.SetSheetRow(packetsSheet, "A1", &headers); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.ID, r.Ivorn, r.Stream, string(r.Role), r.Version,
			deref(r.AuthorIvorn), formatTime(r.AuthorDatetime), r.Received.UTC().Format(timeLayout),
		}
		if err := f.SetSheetRow(packetsSheet, cell, &values); err != nil {
			return err
		}
	}

	widths := map[string]float64{"A": 8, "B": 60, "C": 35, "D": 12, "E": 8, "F": 35, "G": 20, "H": 20}
	for col, width := range widths {
		if err := f.SetColWidth(packetsSheet, col, col, width); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	return f.SetRowStyle(packetsSheet, 1, 1, bold)
}

func writeRoles(f *excelize.File, counts map[string]int64) error {
	if _, err := f.NewSheet(rolesSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(rolesSheet, "A1", &[]string{"Role", "Packets"}); err != nil {
		return err
	}

	roles := make([]string, 0, len(counts))
	for role := range counts {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for i, role := range roles {
		row := i + 2
		f.SetCellValue(rolesSheet, fmt.Sprintf("A%d", row), role)
		f.SetCellValue(rolesSheet, fmt.Sprintf("B%d", row), counts[role])
	}

	if len(roles) == 0 {
		return nil
	}
	last := len(roles) + 1
	return f.AddChart(rolesSheet, "D2", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{
			{
				Name:       "Packets",
				Categories: fmt.Sprintf("%s!$A$2:$A$%d", rolesSheet, last),
				Values:     fmt.Sprintf("%s!$B$2:$B$%d", rolesSheet, last),
			},
		},
		Title:  []excelize.RichTextRun{{Text: "Packets by role"}},
		YAxis:  excelize.ChartAxis{MajorGridLines: true},
		Legend: excelize.ChartLegend{Position: "none"},
		Dimension: excelize.ChartDimension{
			Width:  480,
			Height: 320,
		},
	})
}

func writeInfo(f *excelize.File, report SummaryReport) error {
	if _, err := f.NewSheet(infoSheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Report Generated", report.Generated.UTC().Format(timeLayout)},
		{"Total Rows", len(report.Rows)},
		{"Query", report.QueryString},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(infoSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(infoSheet, "A", "B", 24)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
