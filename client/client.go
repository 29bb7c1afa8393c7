// Package client is a typed consumer of the catalog HTTP API together with the
// view state a product listing screen needs.
package client

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

	"catalog-svc/models"
)

// APIError is a non-2xx answer from the catalog API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog api: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a client for the API rooted at baseURL, e.g.
// http://localhost:8081.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success    bool               `json:"success"`
	Data       json.RawMessage    `json:"data"`
	Error      string             `json:"error"`
	Message    string             `json:"message"`
	Pagination *models.Pagination `json:"pagination"`
}

func (c *Client) List(ctx context.Context, q models.ListQuery) (*models.ProductPage, error) {
	params := url.Values{}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	if q.SortOrder != "" {
		params.Set("sortOrder", q.SortOrder)
	}

	path := "/api/products"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	page := &models.ProductPage{Products: []models.Product{}}
	if err := decodeData(env, &page.Products); err != nil {
		return nil, err
	}
	if env.Pagination != nil {
		page.Pagination = *env.Pagination
	}
	return page, nil
}

func (c *Client) Get(ctx context.Context, id int) (*models.Product, error) {
	env, err := c.do(ctx, http.MethodGet, productPath(id), nil)
	if err != nil {
		return nil, err
	}
	var p models.Product
	if err := decodeData(env, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Create(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/products", in)
	if err != nil {
		return nil, err
	}
	var p models.Product
	if err := decodeData(env, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Update(ctx context.Context, id int, in models.ProductInput) (*models.Product, error) {
	env, err := c.do(ctx, http.MethodPut, productPath(id), in)
	if err != nil {
		return nil, err
	}
	var p models.Product
	if err := decodeData(env, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Delete(ctx context.Context, id int) error {
	_, err := c.do(ctx, http.MethodDelete, productPath(id), nil)
	return err
}

func productPath(id int) string {
	return "/api/products/" + strconv.Itoa(id)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &env, nil
}

func decodeData(env *envelope, dest any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
