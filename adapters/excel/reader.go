package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/thibautjombart/epichange/domain/timeseries"
	"github.com/thibautjombart/epichange/internal/errors"
	"github.com/thibautjombart/epichange/ports"
)

// dateLayouts are tried in order when parsing the date column.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	time.RFC3339,
}

// Options configures which columns of the sheet hold the daily counts.
type Options struct {
	Sheet       string // xlsx only; defaults to the first sheet
	DateColumn  string
	CountColumn string
	GroupColumn string // empty for ungrouped data
	FillGaps    bool   // zero-fill missing days between min and max date
	Calendar    timeseries.Calendar
}

// DefaultOptions uses the date/count header names and no grouping.
func DefaultOptions() Options {
	return Options{
		DateColumn:  "date",
		CountColumn: "count",
		Calendar:    timeseries.DefaultCalendar(),
	}
}

// DataReader loads daily count series from .xlsx or .csv files. It
// implements ports.DatasetProvider: rows with the same group and date are
// summed, so both pre-aggregated tables and raw line lists work.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	opts     Options
}

var _ ports.DatasetProvider = (*DataReader)(nil)

// NewDataReader creates a reader for the given file; the extension decides
// the format.
func NewDataReader(filePath string, opts Options) *DataReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	if opts.DateColumn == "" {
		opts.DateColumn = "date"
	}
	if opts.CountColumn == "" {
		opts.CountColumn = "count"
	}
	if len(opts.Calendar.WeekendDays) == 0 {
		opts.Calendar = timeseries.DefaultCalendar()
	}
	return &DataReader{filePath: filePath, fileType: fileType, opts: opts}
}

// Load reads the file and returns one series per group.
func (r *DataReader) Load(ctx context.Context) (map[string]timeseries.TimeSeries, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.ProviderError(fmt.Sprintf("input file not found: %s", r.filePath))
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readExcel()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.ProviderError("input has no data rows")
	}

	log.Printf("[excel] read %d rows from %s", len(rows)-1, r.filePath)
	return r.aggregate(rows)
}

func (r *DataReader) readCSV() ([][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse CSV file")
	}
	return rows, nil
}

func (r *DataReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := r.opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %q", sheet)
	}
	return rows, nil
}

// aggregate turns header+rows into per-group daily series, summing duplicate
// (group, date) rows.
func (r *DataReader) aggregate(rows [][]string) (map[string]timeseries.TimeSeries, error) {
	header := rows[0]
	dateIdx := columnIndex(header, r.opts.DateColumn)
	countIdx := columnIndex(header, r.opts.CountColumn)
	groupIdx := -1
	if r.opts.GroupColumn != "" {
		groupIdx = columnIndex(header, r.opts.GroupColumn)
		if groupIdx < 0 {
			return nil, errors.ProviderError(fmt.Sprintf("group column %q not found", r.opts.GroupColumn))
		}
	}
	if dateIdx < 0 {
		return nil, errors.ProviderError(fmt.Sprintf("date column %q not found", r.opts.DateColumn))
	}
	if countIdx < 0 {
		return nil, errors.ProviderError(fmt.Sprintf("count column %q not found", r.opts.CountColumn))
	}

	type dayKey struct {
		group string
		date  time.Time
	}
	totals := make(map[dayKey]int)

	for line, row := range rows[1:] {
		if dateIdx >= len(row) || countIdx >= len(row) {
			continue // ragged trailing row
		}
		date, err := parseDate(row[dateIdx])
		if err != nil {
			return nil, errors.ProviderError(fmt.Sprintf("row %d: bad date %q", line+2, row[dateIdx]))
		}
		count, err := strconv.Atoi(strings.TrimSpace(row[countIdx]))
		if err != nil || count < 0 {
			return nil, errors.ProviderError(fmt.Sprintf("row %d: bad count %q", line+2, row[countIdx]))
		}
		group := ""
		if groupIdx >= 0 && groupIdx < len(row) {
			group = strings.TrimSpace(row[groupIdx])
		}
		totals[dayKey{group: group, date: date.Truncate(24 * time.Hour)}] += count
	}

	byGroup := make(map[string]map[time.Time]int)
	for k, c := range totals {
		if byGroup[k.group] == nil {
			byGroup[k.group] = make(map[time.Time]int)
		}
		byGroup[k.group][k.date] = c
	}

	out := make(map[string]timeseries.TimeSeries, len(byGroup))
	for group, days := range byGroup {
		dates := make([]time.Time, 0, len(days))
		for d := range days {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		if r.opts.FillGaps {
			dates = fillDates(dates)
		}
		counts := make([]int, len(dates))
		for i, d := range dates {
			counts[i] = days[d] // zero where the gap was filled
		}

		ts, err := timeseries.FromDates(dates, counts, r.opts.Calendar)
		if err != nil {
			return nil, errors.Wrapf(err, "group %q", group)
		}
		ts.Group = group
		out[group] = ts
	}
	return out, nil
}

// fillDates expands the date list to every calendar day between the first
// and last observed dates.
func fillDates(dates []time.Time) []time.Time {
	if len(dates) == 0 {
		return dates
	}
	out := make([]time.Time, 0, len(dates))
	for d := dates[0]; !d.After(dates[len(dates)-1]); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// excelize can surface dates as serial numbers
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
