package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/pkg/logger"
	"github.com/linkedin-autoposter/pkg/ratelimit"
)

// SheetColumns defines the column headers of the activity sheet
var SheetColumns = []string{
	"ID",
	"Type",
	"Timestamp",
	"Topic",
	"Post URL",
	"Metadata",
}

// SheetsTracker mirrors activity log entries into a Google Sheet
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	limiter       *ratelimit.MultiLimiter
	log           *logger.Logger
}

// NewSheetsTracker creates a tracker from config. It returns nil, nil when the tracker is disabled.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*SheetsTracker, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var srv *sheets.Service
	var err error

	// Try service account JSON first (for env var injection)
	switch {
	case cfg.ServiceAccountJSON != "":
		srv, err = sheets.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.CredentialsFile != "":
		srv, err = sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewWithService(srv, cfg.SpreadsheetID, cfg.SheetName, limiter, log), nil
}

// NewWithService wraps an existing Sheets service
func NewWithService(srv *sheets.Service, spreadsheetID, sheetName string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *SheetsTracker {
	if sheetName == "" {
		sheetName = "Activity"
	}
	return &SheetsTracker{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		limiter:       limiter,
		log:           log.WithComponent("sheets-tracker"),
	}
}

func (t *SheetsTracker) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx, ratelimit.LimiterSheets)
}

// InitializeSheet creates the sheet and headers if they don't exist
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:F1", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(resp.Values) == 0 {
		t.log.Info().Msg("Initializing sheet with headers")
		return t.writeHeaders(ctx)
	}

	t.log.Debug().Msg("Sheet already has headers")
	return nil
}

// ensureSheetExists creates the sheet if it doesn't exist
func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.sheetName {
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: t.sheetName,
					},
				},
			},
		},
	}

	if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

// writeHeaders writes column headers to the first row
func (t *SheetsTracker) writeHeaders(ctx context.Context) error {
	headerRow := make([]interface{}, 0, len(SheetColumns))
	for _, col := range SheetColumns {
		headerRow = append(headerRow, col)
	}

	writeRange := fmt.Sprintf("%s!A1", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{headerRow},
	}

	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}

// AppendActivity appends one activity entry as a row
func (t *SheetsTracker) AppendActivity(ctx context.Context, activity *models.Activity) error {
	if err := t.wait(ctx); err != nil {
		return err
	}

	appendRange := fmt.Sprintf("%s!A:F", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{activityRow(activity)},
	}

	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, appendRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	t.log.Debug().
		Str("type", string(activity.Type)).
		Str("id", activity.ActivityID).
		Msg("Mirrored activity to sheet")
	return nil
}

func activityRow(a *models.Activity) []interface{} {
	postURL := ""
	if a.Type == models.ActivityPost && a.ActivityID != "" {
		postURL = "https://www.linkedin.com/feed/update/" + a.ActivityID
	}

	metadata := "{}"
	if len(a.Metadata) > 0 {
		if data, err := json.Marshal(a.Metadata); err == nil {
			metadata = string(data)
		}
	}

	return []interface{}{
		a.ActivityID,
		string(a.Type),
		a.Timestamp.UTC().Format(time.RFC3339),
		a.Topic(),
		postURL,
		metadata,
	}
}

// ListActivities reads mirrored entries back, skipping the header and malformed rows
func (t *SheetsTracker) ListActivities(ctx context.Context) ([]*models.Activity, error) {
	readRange := fmt.Sprintf("%s!A2:F", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read activities: %w", err)
	}

	var activities []*models.Activity
	for _, row := range resp.Values {
		if a := parseRow(row); a != nil {
			activities = append(activities, a)
		}
	}
	return activities, nil
}

// parseRow parses a sheet row into an Activity
func parseRow(row []interface{}) *models.Activity {
	if len(row) < 3 {
		return nil
	}

	ts, err := time.Parse(time.RFC3339, safeString(row, 2))
	if err != nil {
		return nil
	}

	a := &models.Activity{
		ActivityID: safeString(row, 0),
		Type:       models.ActivityType(safeString(row, 1)),
		Timestamp:  ts,
	}
	if raw := safeString(row, 5); raw != "" {
		var meta models.JSON
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			a.Metadata = meta
		}
	}
	return a
}

func safeString(row []interface{}, i int) string {
	if i < len(row) {
		return fmt.Sprintf("%v", row[i])
	}
	return ""
}
