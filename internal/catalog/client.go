// Package catalog talks to the multi-tenant catalog service. The
// caller's session cookie is forwarded verbatim on every request so
// the catalog applies the same tenant view the original request had.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// FeatureRef is the slice of a catalog feature the staging flow needs
// from a search response.
type FeatureRef struct {
	ID string `json:"id"`
}

// SearchResponse mirrors the catalog's item-search payload. Features
// is a pointer so an absent key can be told apart from an empty list;
// the orchestrator treats absence as a contract violation.
type SearchResponse struct {
	Type    string `json:"type"`
	Context struct {
		Returned int `json:"returned"`
	} `json:"context"`
	Features *[]FeatureRef `json:"features"`
}

// Client is an HTTP client for the catalog's collection endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SearchByIDs queries one collection for the given feature ids using
// a cql2-text filter, with limit set to the id count.
func (c *Client) SearchByIDs(ctx context.Context, collection string, ids []string, cookie string) (*SearchResponse, error) {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, "'"+id+"'")
	}
	params := url.Values{}
	params.Set("filter-lang", "cql2-text")
	params.Set("filter", fmt.Sprintf("id IN (%s)", strings.Join(quoted, ",")))
	params.Set("limit", strconv.Itoa(len(ids)))

	endpoint := fmt.Sprintf("%s/catalog/collections/%s/search?%s", c.baseURL, collection, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	setCookie(req, cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog search returned status %d", resp.StatusCode)
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode catalog search response: %w", err)
	}
	return &result, nil
}

// PublishItem POSTs a serialized feature to the collection's items
// endpoint.
func (c *Client) PublishItem(ctx context.Context, collection string, feature any, cookie string) error {
	payload, err := json.Marshal(feature)
	if err != nil {
		return fmt.Errorf("failed to encode feature: %w", err)
	}

	endpoint := fmt.Sprintf("%s/catalog/collections/%s/items", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	setCookie(req, cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog publish returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// DeleteItem removes one feature from the collection.
func (c *Client) DeleteItem(ctx context.Context, collection, id, cookie string) error {
	endpoint := fmt.Sprintf("%s/catalog/collections/%s/items/%s", c.baseURL, collection, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	setCookie(req, cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("catalog delete returned status %d", resp.StatusCode)
	}
	return nil
}

func setCookie(req *http.Request, cookie string) {
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
}
