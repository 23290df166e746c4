package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sync-admin/internal/domain/project"
	domain "sync-admin/internal/domain/table"
	apperrors "sync-admin/pkg/errors"
	"sync-admin/pkg/logger"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 8 << 20

// Client talks to the Sync API over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a Sync API client. baseURL includes the API prefix,
// e.g. http://localhost:3000/api/v1.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// ListFetcher fetches pages of one listing endpoint.
type ListFetcher[T any] struct {
	client   *Client
	resource string
}

// NewListFetcher returns a fetcher for GET {baseURL}/{resource}.
func NewListFetcher[T any](c *Client, resource string) *ListFetcher[T] {
	return &ListFetcher[T]{client: c, resource: resource}
}

// NewProjectFetcher returns the fetcher behind the projects table.
func NewProjectFetcher(c *Client) *ListFetcher[project.Project] {
	return NewListFetcher[project.Project](c, "projects")
}

type listMeta struct {
	TotalPages int `json:"totalPages"`
}

type listEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta *listMeta       `json:"meta"`
}

// Fetch issues GET {baseURL}/{resource}?page=&limit=&search=&sortBy=.
func (f *ListFetcher[T]) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.Page[T], error) {
	url := fmt.Sprintf("%s/%s?%s", f.client.baseURL, f.resource, req.Query().Encode())
	log := logger.WithContext(ctx, f.client.log).With(zap.String("url", url))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewFetchError(f.resource, 0, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if id := logger.GetRequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := f.client.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.NewFetchError(f.resource, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewFetchError(f.resource, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewFetchError(f.resource, resp.StatusCode, errors.New(snippet(body)))
	}

	page, err := decodePage[T](body)
	if err != nil {
		return nil, apperrors.NewFetchError(f.resource, resp.StatusCode, err)
	}

	log.Debug("fetched page",
		zap.Int("items", len(page.Items)),
		zap.Int("total_pages", page.TotalPages),
		zap.Duration("elapsed", time.Since(start)),
	)
	return page, nil
}

// decodePage accepts {"data":[...],"meta":{...}} and the doubly wrapped
// {"data":{"data":[...],"meta":{...}}}.
func decodePage[T any](body []byte) (*domain.Page[T], error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) > 0 && data[0] == '{' {
		var inner listEnvelope
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
		env = inner
		data = bytes.TrimSpace(inner.Data)
	}

	items := []T{}
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to decode items: %w", err)
		}
	}

	totalPages := 0
	if env.Meta != nil {
		totalPages = env.Meta.TotalPages
	}
	return domain.NewPage(items, totalPages), nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
