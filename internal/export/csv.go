// Package export writes period filings as the downstream CSV format.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

// Header is the column contract consumed downstream. Order matters.
var Header = []string{
	"registrant_name",
	"client_name",
	"filing_document_url",
	"income",
	"expenses",
	"lobbying_descriptions",
	"lobbyist_names",
	"filing_period",
	"filing_year",
}

// Row is one parsed CSV line, all fields as text.
type Row struct {
	RegistrantName string
	ClientName     string
	DocumentURL    string
	Income         string
	Expenses       string
	Descriptions   string
	LobbyistNames  string
	Period         string
	Year           string
}

// RowOf renders a filing the way Write does. Null amounts become "".
func RowOf(f domain.Filing) Row {
	r := Row{
		RegistrantName: f.RegistrantName,
		ClientName:     f.ClientName,
		DocumentURL:    f.DocumentURL,
		Descriptions:   f.Descriptions,
		LobbyistNames:  f.LobbyistNames,
		Period:         string(f.Period),
		Year:           strconv.Itoa(f.Year),
	}
	if f.Income.Valid {
		r.Income = f.Income.Decimal.String()
	}
	if f.Expenses.Valid {
		r.Expenses = f.Expenses.Decimal.String()
	}
	return r
}

func (r Row) record() []string {
	return []string{r.RegistrantName, r.ClientName, r.DocumentURL, r.Income, r.Expenses,
		r.Descriptions, r.LobbyistNames, r.Period, r.Year}
}

// Write emits the header and one row per filing.
func Write(w io.Writer, filings []domain.Filing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, f := range filings {
		if err := cw.Write(RowOf(f).record()); err != nil {
			return fmt.Errorf("write %s: %w", f.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses a CSV produced by Write. The header must match exactly.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i, head[i], col)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			RegistrantName: rec[0],
			ClientName:     rec[1],
			DocumentURL:    rec[2],
			Income:         rec[3],
			Expenses:       rec[4],
			Descriptions:   rec[5],
			LobbyistNames:  rec[6],
			Period:         rec[7],
			Year:           rec[8],
		})
	}
}

// Filename is the attachment name for one period.
func Filename(period domain.Period, year int) string {
	return fmt.Sprintf("lda_filings_%s_%d.csv", period, year)
}
