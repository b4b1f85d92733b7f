package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the object-memory service. The store itself is opaque to
// this server: we only forward natural-language queries and object snapshots.
type Client struct {
	baseURL string
	client  *http.Client
}

// New builds a memory client for the service base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type queryResponse struct {
	Status        string `json:"status"`
	ReceivedQuery string `json:"received_query"`
	Answer        string `json:"answer"`
}

// Query asks the service a natural-language question about stored object
// state and returns its answer verbatim.
func (c *Client) Query(ctx context.Context, text string) (string, error) {
	endpoint := c.baseURL + "/query?text=" + url.QueryEscape(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("memory query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("memory query status %d: %s", resp.StatusCode, body)
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("memory query response: %w", err)
	}
	return parsed.Answer, nil
}

type objectUpdate struct {
	Object string `json:"object"`
	Image  string `json:"image"`
}

// UpdateObject posts a base64 frame for the named object so the service can
// refresh its structured state.
func (c *Client) UpdateObject(ctx context.Context, object string, imageB64 string) error {
	body, err := json.Marshal(objectUpdate{Object: object, Image: imageB64})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/object", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("memory object update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory object update status %d", resp.StatusCode)
	}
	return nil
}
