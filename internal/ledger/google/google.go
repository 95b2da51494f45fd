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
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"rimborsi/internal/core"
	"rimborsi/internal/ledger"
)

var _ ledger.Writer = (*Client)(nil)

const defaultIndexTTL = 5 * time.Minute

// Credentials locate the OAuth client and the token saved by the authorize step.
// Inline JSON wins over files.
type Credentials struct {
	ClientJSON string
	ClientFile string
	TokenJSON  string
	TokenFile  string
}

type Options struct {
	SpreadsheetID string
	SheetName     string
	Credentials   Credentials
}

// Client appends payout rows to one sheet. Column A holds the expense ID and
// doubles as the index used to skip expenses that were already exported.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger

	// mu serializes appends so two rows never claim the same line.
	mu               sync.Mutex
	rowCount         int
	rowsByExpense    map[string]int
	indexExpiresAt   time.Time
	indexValidPeriod time.Duration
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:              svc,
		spreadsheetID:    spreadsheetID,
		sheetName:        sheetName,
		logger:           logger,
		indexValidPeriod: defaultIndexTTL,
	}
}

// NewFromOptions builds an OAuth-authorized Sheets client.
func NewFromOptions(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if strings.TrimSpace(opts.SheetName) == "" {
		return nil, errors.New("missing sheet name")
	}
	svc, err := newSheetsService(ctx, opts.Credentials)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, opts.SpreadsheetID, opts.SheetName, logger), nil
}

func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	clientJSON, err := readInlineOrFile(creds.ClientJSON, creds.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := readInlineOrFile(creds.TokenJSON, creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	// token refreshes go through the pooled client too
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := oauth2.NewClient(ctx, cfg.TokenSource(ctx, &tok))

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if path = strings.TrimSpace(path); path != "" {
		return os.ReadFile(path)
	}
	return nil, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
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

// Append writes e as the next row of the payout sheet, writing the header
// first when the sheet is empty.
func (c *Client) Append(ctx context.Context, e core.Expense) (string, error) {
	if err := ledger.CheckExportable(e); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshIndex(ctx); err != nil {
		return "", err
	}

	key := strconv.FormatInt(e.ID, 10)
	if row, ok := c.rowsByExpense[key]; ok {
		c.logger.InfoContext(ctx, "Expense already in payout sheet", "expense_id", e.ID, "row", row)
		return c.rowRef(row), nil
	}

	if c.rowCount == 0 {
		header := make([]any, len(ledger.Header))
		for i, h := range ledger.Header {
			header[i] = h
		}
		if err := c.writeRow(ctx, 1, header); err != nil {
			c.indexExpiresAt = time.Time{}
			return "", fmt.Errorf("write header: %w", err)
		}
		c.rowCount = 1
	}

	next := c.rowCount + 1
	if err := c.writeRow(ctx, next, ledger.Row(e)); err != nil {
		c.indexExpiresAt = time.Time{}
		return "", err
	}
	c.rowCount = next
	c.rowsByExpense[key] = next
	return c.rowRef(next), nil
}

// refreshIndex reloads column A when the cached copy expired. Caller holds mu.
func (c *Client) refreshIndex(ctx context.Context) error {
	if c.rowsByExpense != nil && time.Now().Before(c.indexExpiresAt) {
		return nil
	}

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}

	index := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if v := strings.TrimSpace(fmt.Sprint(row[0])); v != "" {
			index[v] = i + 1
		}
	}
	c.rowsByExpense = index
	c.rowCount = len(resp.Values)
	c.indexExpiresAt = time.Now().Add(c.indexValidPeriod)
	return nil
}

// InvalidateIndex forces the next Append to re-read the sheet.
func (c *Client) InvalidateIndex() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexExpiresAt = time.Time{}
}

func (c *Client) writeRow(ctx context.Context, row int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:H%d", c.sheetName, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) rowRef(row int) string {
	return fmt.Sprintf("%s!A%d:H%d", c.sheetName, row, row)
}
