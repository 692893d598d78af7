package store

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"paperback/internal/domain"
)

// csvBar is the CSV row format for bar fixtures and exports. Timestamps are
// RFC 3339 strings.
type csvBar struct {
	Symbol    string  `csv:"symbol"`
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
}

// ReadBarsCSV loads a bar series from a CSV file. Rows are returned in file
// order; callers are responsible for supplying them pre-sorted by timestamp.
func ReadBarsCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []csvBar
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing timestamp %q: %w", i+1, r.Timestamp, err)
		}
		bars = append(bars, domain.Bar{
			Symbol:    r.Symbol,
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

// WriteBarsCSV writes a bar series to a CSV file, overwriting any existing
// file at path.
func WriteBarsCSV(path string, bars []domain.Bar) error {
	rows := make([]csvBar, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, csvBar{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.Format(time.RFC3339),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return gocsv.MarshalFile(&rows, f)
}
