package horizon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
)

var _ API = descendingClient{}

// descendingClient lists claimable balances newest first. The request type
// has no order field, so the listing goes out with order=desc added to the
// URL the request builds.
type descendingClient struct {
	*horizonclient.Client
}

func (c descendingClient) ClaimableBalances(cr horizonclient.ClaimableBalanceRequest) (hProtocol.ClaimableBalances, error) {
	var page hProtocol.ClaimableBalances

	req, err := cr.HTTPRequest(strings.TrimRight(c.HorizonURL, "/") + "/")
	if err != nil {
		return page, err
	}
	q := req.URL.Query()
	q.Set("order", "desc")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/hal+json")
	if c.AppName != "" {
		req.Header.Set("X-App-Name", c.AppName)
	}

	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return page, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &horizonclient.Error{Response: resp}
		if err := json.NewDecoder(resp.Body).Decode(&herr.Problem); err != nil {
			return page, fmt.Errorf("status %d: decode problem: %w", resp.StatusCode, err)
		}
		return page, herr
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("decode claimable balances: %w", err)
	}
	return page, nil
}
