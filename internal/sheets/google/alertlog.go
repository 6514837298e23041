// Package google appends alerts to a Google Sheets tab so households can
// follow them outside the app.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/ports"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options select the spreadsheet and the credentials. A service account
// (inline JSON or file) takes precedence over an OAuth client plus token.
type Options struct {
	SpreadsheetID      string
	Sheet              string
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthTokenFile     string
}

// AlertLog writes one row per alert: created at, user, type, priority,
// title, message, alert id.
type AlertLog struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

var _ ports.AlertExporter = (*AlertLog)(nil)

// New builds an AlertLog from opts.
func New(ctx context.Context, opts Options) (*AlertLog, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	auth, err := credentialOption(ctx, opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, auth, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets alert log ready",
		"spreadsheet_id", opts.SpreadsheetID,
		"sheet", sheetName(opts.Sheet))
	return NewWithService(svc, opts.SpreadsheetID, opts.Sheet), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) *AlertLog {
	return &AlertLog{svc: svc, spreadsheetID: spreadsheetID, sheet: sheetName(sheet)}
}

func sheetName(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "Alerts"
	}
	return s
}

func credentialOption(ctx context.Context, opts Options) (goption.ClientOption, error) {
	switch {
	case opts.ServiceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return goption.WithCredentialsJSON([]byte(opts.ServiceAccountJSON)), nil
	case opts.ServiceAccountFile != "":
		b, err := os.ReadFile(opts.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials from file", "path", opts.ServiceAccountFile)
		return goption.WithCredentialsJSON(b), nil
	case opts.OAuthClientFile != "" && opts.OAuthTokenFile != "":
		ts, err := oauthTokenSource(ctx, opts.OAuthClientFile, opts.OAuthTokenFile)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth client credentials", "token_file", opts.OAuthTokenFile)
		return goption.WithTokenSource(ts), nil
	default:
		return nil, errors.New("missing Google credentials (set a service account or an OAuth client and token file)")
	}
}

// oauthTokenSource refreshes the token written by cmd/oauth-init.
func oauthTokenSource(ctx context.Context, clientFile, tokenFile string) (oauth2.TokenSource, error) {
	b, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, tok), nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no token", path)
	}
	return &tok, nil
}

// ExportAlerts appends alerts in creation order with a single request.
func (l *AlertLog) ExportAlerts(ctx context.Context, alerts []core.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	if l.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sorted := make([]core.AlertRecord, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	rows := make([][]any, 0, len(sorted))
	for _, a := range sorted {
		rows = append(rows, alertRow(a))
	}

	rng := fmt.Sprintf("%s!A:G", l.sheet)
	_, err := l.svc.Spreadsheets.Values.Append(l.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append alerts to %s: %w", l.sheet, err)
	}

	slog.InfoContext(ctx, "Exported alerts to Google Sheets",
		log.FieldComponent, log.ComponentSheets,
		log.FieldOperation, log.OpExport,
		"sheet", l.sheet,
		"count", len(rows))
	return nil
}

func alertRow(a core.AlertRecord) []any {
	return []any{
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.UserID,
		string(a.AlertType),
		string(a.Priority),
		a.Title,
		a.Message,
		a.ID,
	}
}
