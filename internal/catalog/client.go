// Package catalog is the HTTP client for the external movie catalog.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

var (
	// ErrMovieNotFound means the catalog answered 404 for the movie.
	ErrMovieNotFound = errors.New("movie not found")
	// ErrCatalogUnavailable means the catalog could not be reached or
	// answered with a server error.
	ErrCatalogUnavailable = errors.New("movie catalog unavailable")
)

// StatusError is returned for any other non-2xx answer.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("movie catalog returned status %d", e.Code)
}

// Movie is the catalog entry in the shape this service exposes.
type Movie struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Genre       string `json:"genre"`
	Duration    *int   `json:"duration"`
	Description string `json:"description"`
	PosterURL   string `json:"poster_url,omitempty"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Get fetches one movie by ID.
func (c *Client) Get(ctx context.Context, movieID string) (*Movie, error) {
	var raw rawFilm
	if err := c.getJSON(ctx, "/films/"+url.PathEscape(movieID), &raw); err != nil {
		return nil, err
	}
	m := raw.toMovie()
	return &m, nil
}

// List fetches every movie in the catalog.
func (c *Client) List(ctx context.Context) ([]Movie, error) {
	var raws []rawFilm
	if err := c.getJSON(ctx, "/films", &raws); err != nil {
		return nil, err
	}
	movies := make([]Movie, 0, len(raws))
	for _, r := range raws {
		movies = append(movies, r.toMovie())
	}
	return movies, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrMovieNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrCatalogUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrCatalogUnavailable, err)
	}
	return nil
}

// rawFilm accepts both the catalog's native field names (nom, imageData)
// and the already-mapped ones (name, posterUrl).
type rawFilm struct {
	ID          json.RawMessage `json:"id"`
	Nom         string          `json:"nom"`
	Name        string          `json:"name"`
	Genre       string          `json:"genre"`
	Duration    *float64        `json:"duration"`
	Description string          `json:"description"`
	ImageData   string          `json:"imageData"`
	PosterURL   string          `json:"posterUrl"`
}

func (r rawFilm) toMovie() Movie {
	m := Movie{
		ID:          rawID(r.ID),
		Name:        firstNonEmpty(r.Nom, r.Name, "Untitled"),
		Genre:       r.Genre,
		Description: r.Description,
		PosterURL:   firstNonEmpty(r.ImageData, r.PosterURL),
	}
	if r.Duration != nil && *r.Duration > 0 {
		d := int(*r.Duration)
		m.Duration = &d
	}
	return m
}

// rawID renders numeric and string IDs the same way.
func rawID(b json.RawMessage) string {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
