package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/config"
)

const maxLedgerResponseBytes = 1 << 20

// SupabaseLedger talks to a PostgREST table holding one credits column per identity.
type SupabaseLedger struct {
	baseURL       string
	serviceKey    string
	schema        string
	table         string
	creditsColumn string
	keyColumn     string
	client        *http.Client
}

func NewSupabaseLedger(cfg config.SupabaseConfig, client *http.Client) *SupabaseLedger {
	if client == nil {
		client = http.DefaultClient
	}
	return &SupabaseLedger{
		baseURL:       cfg.URL,
		serviceKey:    cfg.ServiceKey,
		schema:        cfg.Schema,
		table:         cfg.Table,
		creditsColumn: cfg.CreditsColumn,
		keyColumn:     cfg.KeyColumn,
		client:        client,
	}
}

func (l *SupabaseLedger) GetBalance(ctx context.Context, identity string) (int64, error) {
	q := url.Values{}
	q.Set("select", l.creditsColumn)
	q.Set(l.keyColumn, "eq."+identity)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.tableURL(q), nil)
	if err != nil {
		return 0, apperrors.New(apperrors.LedgerUnreachable, "failed to build ledger request", err)
	}
	l.setHeaders(req, false)

	rows, status, err := l.do(req)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, apperrors.Newf(apperrors.LedgerUnreachable, "Failed to fetch credits: ledger returned status %d", status)
	}
	if len(rows) == 0 {
		return 0, apperrors.New(apperrors.AccountNotFound, "User not found", nil)
	}
	return l.credits(rows[0])
}

func (l *SupabaseLedger) SetBalance(ctx context.Context, identity string, value int64) error {
	q := url.Values{}
	q.Set(l.keyColumn, "eq."+identity)

	rows, status, err := l.patch(ctx, q, value)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNoContent:
		return nil
	case status == http.StatusOK && len(rows) == 0:
		return apperrors.New(apperrors.AccountNotFound, "User not found", nil)
	case status == http.StatusOK:
		return nil
	default:
		return apperrors.Newf(apperrors.LedgerUnreachable, "Failed to update credits: ledger returned status %d", status)
	}
}

func (l *SupabaseLedger) CompareAndSetBalance(ctx context.Context, identity string, expected, next int64) (bool, error) {
	q := url.Values{}
	q.Set(l.keyColumn, "eq."+identity)
	q.Set(l.creditsColumn, "eq."+strconv.FormatInt(expected, 10))

	rows, status, err := l.patch(ctx, q, next)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, apperrors.Newf(apperrors.LedgerUnreachable, "Failed to update credits: ledger returned status %d", status)
	}
	return len(rows) > 0, nil
}

func (l *SupabaseLedger) patch(ctx context.Context, q url.Values, value int64) ([]map[string]json.RawMessage, int, error) {
	body, err := json.Marshal(map[string]int64{l.creditsColumn: value})
	if err != nil {
		return nil, 0, apperrors.New(apperrors.LedgerUnreachable, "failed to encode ledger update", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, l.tableURL(q), bytes.NewReader(body))
	if err != nil {
		return nil, 0, apperrors.New(apperrors.LedgerUnreachable, "failed to build ledger request", err)
	}
	l.setHeaders(req, true)
	req.Header.Set("Prefer", "return=representation")

	return l.do(req)
}

func (l *SupabaseLedger) do(req *http.Request) ([]map[string]json.RawMessage, int, error) {
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, 0, apperrors.New(apperrors.LedgerUnreachable, "ledger request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxLedgerResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, apperrors.New(apperrors.LedgerUnreachable, "failed to read ledger response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(bytes.TrimSpace(raw)) == 0 {
		return nil, resp.StatusCode, nil
	}

	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, resp.StatusCode, apperrors.New(apperrors.LedgerUnreachable, "failed to decode ledger response", err)
	}
	return rows, resp.StatusCode, nil
}

func (l *SupabaseLedger) credits(row map[string]json.RawMessage) (int64, error) {
	raw, ok := row[l.creditsColumn]
	if !ok {
		return 0, apperrors.Newf(apperrors.LedgerUnreachable, "ledger response is missing column %s", l.creditsColumn)
	}
	var credits *int64
	if err := json.Unmarshal(raw, &credits); err != nil {
		return 0, apperrors.New(apperrors.LedgerUnreachable, "ledger returned a non-integer balance", err)
	}
	if credits == nil {
		return 0, nil
	}
	return *credits, nil
}

func (l *SupabaseLedger) tableURL(q url.Values) string {
	return fmt.Sprintf("%s/rest/v1/%s?%s", l.baseURL, l.table, q.Encode())
}

func (l *SupabaseLedger) setHeaders(req *http.Request, write bool) {
	req.Header.Set("apikey", l.serviceKey)
	req.Header.Set("Authorization", "Bearer "+l.serviceKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Profile", l.schema)
	if write {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Profile", l.schema)
	}
}
