package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tripstats/internal/core"
	ports "tripstats/internal/sheets"
	"tripstats/internal/trips"
)

// Credentials selects how the client authenticates. An OAuth client with
// a stored token (see cmd/oauth-init) takes precedence over a service account.
type Credentials struct {
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenJSON     string
	OAuthTokenFile     string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// CredentialsFromEnv reads the service account variables; the OAuth ones
// come from the application config.
func CredentialsFromEnv() Credentials {
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return Credentials{
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		ServiceAccountFile: file,
	}
}

func (c Credentials) hasOAuthClient() bool {
	return c.OAuthClientJSON != "" || c.OAuthClientFile != ""
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu     sync.Mutex
	sheets map[string]bool
}

var _ ports.ReportWriter = (*Client)(nil)

// New creates a Sheets report writer for one spreadsheet.
func New(ctx context.Context, spreadsheetID string, creds Credentials) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheets: make(map[string]bool)}
}

func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	if creds.hasOAuthClient() {
		return newOAuthService(ctx, creds)
	}

	var credentialsJSON []byte
	var err error
	switch {
	case creds.ServiceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(creds.ServiceAccountJSON)
	case creds.ServiceAccountFile != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", creds.ServiceAccountFile)
		credentialsJSON, err = os.ReadFile(creds.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing credentials (set GOOGLE_OAUTH_CLIENT_JSON/FILE with a token, or GOOGLE_SERVICE_ACCOUNT_JSON/FILE)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func newOAuthService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	clientJSON, err := inlineOrFile(creds.OAuthClientJSON, creds.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	if creds.OAuthTokenJSON == "" && creds.OAuthTokenFile == "" {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	tokenJSON, err := inlineOrFile(creds.OAuthTokenJSON, creds.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	// Token refreshes go through the pooled client as well.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := cfg.Client(ctx, &tok)

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created with OAuth credentials")
	return service, nil
}

func inlineOrFile(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	return os.ReadFile(path)
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// WriteReport replaces the user's tab with the summary tables.
func (c *Client) WriteReport(ctx context.Context, userID int64, summary core.Summary) error {
	if err := trips.CheckUser(userID); err != nil {
		return err
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := ports.SheetName(userID)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}
	if err := c.clear(ctx, sheet); err != nil {
		return err
	}

	rows := ports.ReportRows(summary)
	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteRange(sheet, "A1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write report %q: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Wrote trip report",
		"user_id", userID,
		"sheet", sheet,
		"rows", len(rows))
	return nil
}

// ClearReport empties the user's tab if it exists.
func (c *Client) ClearReport(ctx context.Context, userID int64) error {
	if err := trips.CheckUser(userID); err != nil {
		return err
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := ports.SheetName(userID)
	exists, err := c.hasSheet(ctx, sheet)
	if err != nil || !exists {
		return err
	}
	return c.clear(ctx, sheet)
}

func (c *Client) clear(ctx context.Context, sheet string) error {
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteRange(sheet, ""), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %q: %w", sheet, err)
	}
	return nil
}

func (c *Client) hasSheet(ctx context.Context, sheet string) (bool, error) {
	c.mu.Lock()
	known := c.sheets[sheet]
	c.mu.Unlock()
	if known {
		return true, nil
	}

	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			c.sheets[s.Properties.Title] = true
		}
	}
	return c.sheets[sheet], nil
}

func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	exists, err := c.hasSheet(ctx, sheet)
	if err != nil || exists {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", sheet, err)
	}
	c.mu.Lock()
	c.sheets[sheet] = true
	c.mu.Unlock()
	slog.InfoContext(ctx, "Created report sheet", "sheet", sheet)
	return nil
}

// quoteRange builds an A1 range for a sheet title that may contain spaces.
func quoteRange(sheet, cell string) string {
	r := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cell != "" {
		r += "!" + cell
	}
	return r
}
