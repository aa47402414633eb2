package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/milkchain/internal/config"
)

// defaultSettingsRange holds one setting per row: key in column A, JSON in column B.
const defaultSettingsRange = "Settings!A:B"

// GoogleSheetRepository lets operators keep pipeline settings in a spreadsheet.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	settingsRange string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	settingsRange := cfg.SettingsRange
	if settingsRange == "" {
		settingsRange = defaultSettingsRange
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		settingsRange: settingsRange,
		logger:        logger,
	}, nil
}

// ReadRange fetches a rectangular data range from the spreadsheet.
func (r *GoogleSheetRepository) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	if sheetRange == "" {
		return nil, fmt.Errorf("sheetRange must not be empty")
	}

	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", sheetRange, err)
	}

	return resp.Values, nil
}

// GetSetting scans the settings range for key and decodes its JSON cell into dest.
func (r *GoogleSheetRepository) GetSetting(ctx context.Context, key string, dest any) (bool, error) {
	rows, err := r.ReadRange(ctx, r.settingsRange)
	if err != nil {
		return false, err
	}
	return lookupSetting(rows, key, dest, r.logger)
}

func lookupSetting(rows [][]interface{}, key string, dest any, logger *zap.Logger) (bool, error) {
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) != key {
			continue
		}

		raw := strings.TrimSpace(fmt.Sprint(row[1]))
		if raw == "" {
			logger.Debug("skip empty setting cell", zap.String("key", key))
			return false, nil
		}
		if err := json.Unmarshal([]byte(raw), dest); err != nil {
			return false, fmt.Errorf("decode setting %s: %w", key, err)
		}
		return true, nil
	}
	return false, nil
}
