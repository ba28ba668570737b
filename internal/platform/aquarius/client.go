// Package aquarius is a read-only client for the off-chain market-key
// directory that maps market key addresses to the asset pairs they stand for.
package aquarius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// maxDirectoryPages bounds a full directory walk.
const maxDirectoryPages = 100

// Client is the REST client for the market-key directory.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a directory client.
//
// baseURL is the directory root, e.g. "https://marketkeys-tracker.aqua.network".
func NewClient(baseURL string, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiMarketKey struct {
	AccountID         string `json:"account_id"`
	DownvoteAccountID string `json:"downvote_account_id"`
	Asset1            string `json:"asset1"`
	Asset2            string `json:"asset2"`
}

func (k apiMarketKey) toDomain() domain.MarketKey {
	return domain.MarketKey{
		Up:     k.AccountID,
		Down:   k.DownvoteAccountID,
		Asset1: k.Asset1,
		Asset2: k.Asset2,
	}
}

type apiPage struct {
	Count   int            `json:"count"`
	Next    *string        `json:"next"`
	Results []apiMarketKey `json:"results"`
}

// ListMarketKeys walks the whole directory.
func (c *Client) ListMarketKeys(ctx context.Context) ([]domain.MarketKey, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	next := c.baseURL + "/api/market-keys/?" + params.Encode()

	var keys []domain.MarketKey
	for page := 0; next != "" && page < maxDirectoryPages; page++ {
		p, err := c.getPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("aquarius: list market keys: %w", err)
		}
		for _, k := range p.Results {
			keys = append(keys, k.toDomain())
		}
		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return keys, nil
}

// FindByAddresses resolves market keys whose up or down address is in
// addresses. Used to name markets discovered from on-chain balances.
func (c *Client) FindByAddresses(ctx context.Context, addresses []string) ([]domain.MarketKey, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	for _, a := range addresses {
		params.Add("account_id", a)
	}

	p, err := c.getPage(ctx, c.baseURL+"/api/market-keys/?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("aquarius: find market keys: %w", err)
	}

	want := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		want[a] = struct{}{}
	}
	var keys []domain.MarketKey
	for _, k := range p.Results {
		_, up := want[k.AccountID]
		_, down := want[k.DownvoteAccountID]
		if up || down {
			keys = append(keys, k.toDomain())
		}
	}
	return keys, nil
}

func (c *Client) getPage(ctx context.Context, rawURL string) (apiPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apiPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiPage{}, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiPage{}, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return apiPage{}, err
	}

	var p apiPage
	if err := json.Unmarshal(body, &p); err != nil {
		return apiPage{}, fmt.Errorf("decode page: %w", err)
	}
	return p, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
