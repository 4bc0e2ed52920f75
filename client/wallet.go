package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the API answers 404 for a lookup.
var ErrNotFound = errors.New("not found")

// UserRef is the structured identity the API attaches to transfers.
type UserRef struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
}

// RawTransaction is a transaction record exactly as the API returns it.
// Field presence varies by transaction kind and API version, so almost
// everything is optional.
type RawTransaction struct {
	ID            string           `json:"id,omitempty"`
	LegacyID      string           `json:"_id,omitempty"`
	Kind          string           `json:"kind,omitempty"`
	Type          string           `json:"type,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Status        string           `json:"status,omitempty"`
	CreatedAt     string           `json:"createdAt,omitempty"`
	Timestamp     string           `json:"timestamp,omitempty"`
	Description   string           `json:"description,omitempty"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	FromAddress   string           `json:"fromAddress,omitempty"`
	ToAddress     string           `json:"toAddress,omitempty"`
	Confirmations *int             `json:"confirmations,omitempty"`
	BlockHash     string           `json:"blockHash,omitempty"`
	FromUser      *UserRef         `json:"fromUser,omitempty"`
	ToUser        *UserRef         `json:"toUser,omitempty"`
	SenderName    string           `json:"senderName,omitempty"`
	RecipientName string           `json:"recipientName,omitempty"`
	TaskID        string           `json:"taskId,omitempty"`
}

// Balance is the wallet balance returned by the API.
type Balance struct {
	Total     decimal.Decimal            `json:"total"`
	Breakdown map[string]decimal.Decimal `json:"breakdown"`
}

// Client is the HTTP client for the CELF wallet API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new wallet API client. token may be empty.
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Balance fetches the current balance and its breakdown for a user.
func (c *Client) Balance(ctx context.Context, userID string) (*Balance, error) {
	u := fmt.Sprintf("%s/api/v1/users/%s/wallet/balance", c.baseURL, url.PathEscape(userID))

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var balance Balance
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("fetched balance", "user_id", userID, "total", balance.Total.String())
	return &balance, nil
}

// Transactions fetches the most recent transactions for a user, newest first.
// Elements that are not JSON objects are dropped and logged; they never fail
// the batch. Field-level problems are left to the caller's validation.
func (c *Client) Transactions(ctx context.Context, userID string, limit int) ([]RawTransaction, error) {
	u := fmt.Sprintf("%s/api/v1/users/%s/wallet/transactions", c.baseURL, url.PathEscape(userID))
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	txns := make([]RawTransaction, 0, len(response.Transactions))
	for i, msg := range response.Transactions {
		var raw RawTransaction
		if err := json.Unmarshal(msg, &raw); err != nil {
			c.logger.Warn("dropping undecodable transaction record",
				"user_id", userID,
				"index", i,
				"error", err,
			)
			continue
		}
		txns = append(txns, raw)
	}

	c.logger.Debug("fetched transactions", "user_id", userID, "count", len(txns))
	return txns, nil
}

// Transaction fetches a single transaction by id.
func (c *Client) Transaction(ctx context.Context, id string) (*RawTransaction, error) {
	u := fmt.Sprintf("%s/api/v1/transactions/%s", c.baseURL, url.PathEscape(id))

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var raw RawTransaction
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &raw, nil
}

// do issues an authenticated GET request.
func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
