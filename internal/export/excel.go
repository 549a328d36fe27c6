// Package export renders bookings as an XLSX workbook for administrators.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"testdrive/internal/models"
	"testdrive/internal/schedule"
)

const (
	BookingsSheet = "Bookings"
	SummarySheet  = "Summary"
)

var bookingColumns = []string{
	"ID", "Resource", "User", "Date", "Start", "End", "Status", "Notes", "Created At", "Updated At",
}

// Writer appends rows to sheets of an in-memory workbook.
type Writer struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func NewWriter() *Writer {
	return &Writer{file: excelize.NewFile()}
}

// AddSheet starts a new sheet; the first call renames the default sheet.
func (w *Writer) AddSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *Writer) WriteHeader(columns []string) error {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
	end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
	return w.file.SetCellStyle(w.currentSheet, start, end, style)
}

func (w *Writer) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *Writer) Save(out io.Writer) error {
	return w.file.Write(out)
}

func (w *Writer) Close() error {
	return w.file.Close()
}

// WriteBookings writes a Bookings sheet with one row per booking and a
// Summary sheet with the count per status.
func WriteBookings(out io.Writer, bookings []models.Booking) error {
	w := NewWriter()
	defer w.Close()

	if err := w.AddSheet(BookingsSheet); err != nil {
		return err
	}
	if err := w.WriteHeader(bookingColumns); err != nil {
		return err
	}

	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, b := range bookings {
		counts[b.Status]++
		err := w.WriteRow([]interface{}{
			b.ID, b.ResourceID, b.UserID, b.DateString(), b.StartTime.String(), b.EndTime.String(),
			string(b.Status), b.Notes, b.CreatedAt.UTC().Format(time.RFC3339), b.UpdatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
	}

	if err := w.AddSheet(SummarySheet); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Status", "Bookings"}); err != nil {
		return err
	}
	for _, s := range models.AllStatuses {
		if err := w.WriteRow([]interface{}{string(s), counts[s]}); err != nil {
			return err
		}
	}
	if err := w.WriteRow([]interface{}{"TOTAL", len(bookings)}); err != nil {
		return err
	}

	return w.Save(out)
}

// GenerateFilename names an export covering [from, to]; zero bounds are "all".
func GenerateFilename(from, to time.Time) string {
	bound := func(t time.Time) string {
		if t.IsZero() {
			return "all"
		}
		return t.Format(schedule.DateLayout)
	}
	return fmt.Sprintf("bookings_%s_%s.xlsx", bound(from), bound(to))
}
