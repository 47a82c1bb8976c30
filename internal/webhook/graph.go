package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadqual_backend/platform/config"
)

const graphBaseURL = "https://graph.facebook.com/v19.0"

// GraphClient fetches leadgen field data from the Meta Graph API. The
// webhook notification only carries ids; the answers live behind this call.
type GraphClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewGraphClient creates a Graph API client. Returns nil when no token is
// configured; FetchLead tolerates a nil receiver.
func NewGraphClient(cfg config.MetaWebhookConfig) *GraphClient {
	if cfg.GetMetaGraphToken() == "" {
		return nil
	}
	return &GraphClient{
		baseURL: graphBaseURL,
		token:   cfg.GetMetaGraphToken(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// LeadData is the Graph API response for one leadgen id.
type LeadData struct {
	ID        string      `json:"id"`
	CreatedAt string      `json:"created_time"`
	FieldData []FieldData `json:"field_data"`
}

// FieldData is one answered form field.
type FieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// FetchLead retrieves the submitted form answers for a leadgen id.
func (g *GraphClient) FetchLead(ctx context.Context, leadgenID string) (*LeadData, error) {
	if g == nil {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/%s?access_token=%s&fields=field_data,created_time",
		g.baseURL, url.PathEscape(leadgenID), url.QueryEscape(g.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("graph returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var lead LeadData
	if err := json.NewDecoder(resp.Body).Decode(&lead); err != nil {
		return nil, fmt.Errorf("decode graph response: %w", err)
	}
	return &lead, nil
}
