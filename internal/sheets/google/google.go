package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"mcdry/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client mirrors member balances into one tab of a spreadsheet. Row 1 is a
// header; each following row is keyed by the member id in column A.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ sheets.BalanceMirror = (*Client)(nil)

var header = []any{"Member ID", "Member Number", "Name", "Balance", "Leave Days"}

// Credentials selects how the service account is supplied. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

func New(ctx context.Context, spreadsheetID, sheetName string, creds Credentials) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Members"
	}

	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// newSheetsService authenticates with a service account.
func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(creds.JSON) != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(creds.JSON)
	case strings.TrimSpace(creds.File) != "":
		b, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", creds.File)
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (c *Client) UpsertMember(ctx context.Context, row sheets.MemberRow) error {
	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}

	values := &gsheet.ValueRange{Values: [][]any{rowValues(row)}}
	if n := findRow(ids, row.MemberID); n > 0 {
		rng := fmt.Sprintf("%s!A%d:E%d", c.sheetName, n, n)
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, values).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		return nil
	}

	if len(ids) == 0 {
		if err := c.writeHeader(ctx); err != nil {
			return err
		}
	}
	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, values).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append member %d: %w", row.MemberID, err)
	}
	return nil
}

// RemoveMember blanks the member's row. ReplaceAll compacts the sheet.
func (c *Client) RemoveMember(ctx context.Context, memberID int64) error {
	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	n := findRow(ids, memberID)
	if n <= 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:E%d", c.sheetName, n, n)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) ReplaceAll(ctx context.Context, rows []sheets.MemberRow) error {
	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, header)
	for _, r := range rows {
		values = append(values, rowValues(r))
	}
	target := fmt.Sprintf("%s!A1", c.sheetName)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %d rows: %w", len(rows), err)
	}
	return nil
}

func (c *Client) writeHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:E1", c.sheetName)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// findRow returns the 1-based sheet row holding memberID in column A, or 0.
// The header row never matches because it is not numeric.
func findRow(values [][]any, memberID int64) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err == nil && id == memberID {
			return i + 1
		}
	}
	return 0
}

func rowValues(r sheets.MemberRow) []any {
	return []any{r.MemberID, r.Number, r.Name, r.Balance.String(), r.LeaveDays}
}
