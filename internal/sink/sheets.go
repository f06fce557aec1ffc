package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/pavelanni/trivia/internal/model"
)

// DefaultWorksheet is the tab responses are appended to.
const DefaultWorksheet = "Responses"

// Sheets appends rows to a worksheet of a Google spreadsheet.
type Sheets struct {
	spreadsheetID string
	worksheet     string
	appendFn      func(ctx context.Context, rng string, vr *sheets.ValueRange) error
}

// NewSheets authenticates with a service-account credentials file.
func NewSheets(ctx context.Context, credentialsFile, spreadsheetID, worksheet string) (*Sheets, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet ID is required")
	}
	if worksheet == "" {
		worksheet = DefaultWorksheet
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &Sheets{
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		appendFn: func(ctx context.Context, rng string, vr *sheets.ValueRange) error {
			_, err := svc.Spreadsheets.Values.Append(spreadsheetID, rng, vr).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
	}, nil
}

// Append adds one sheet row per record, every cell as text.
func (s *Sheets) Append(ctx context.Context, batch []model.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if err := s.appendFn(ctx, sheetRange(s.worksheet), valueRange(batch)); err != nil {
		return fmt.Errorf("append to spreadsheet %s: %w", s.spreadsheetID, err)
	}
	return nil
}

func sheetRange(worksheet string) string {
	return "'" + strings.ReplaceAll(worksheet, "'", "''") + "'"
}

func valueRange(batch []model.Record) *sheets.ValueRange {
	values := make([][]any, 0, len(batch))
	for _, r := range batch {
		cells := r.Strings()
		row := make([]any, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		values = append(values, row)
	}
	return &sheets.ValueRange{MajorDimension: "ROWS", Values: values}
}
