// Package remote talks to the catalog API: it fetches the collection and
// the wishlist and sends per-album mutations. Wire rows are normalised into
// [model.Album] values here so nothing above this package sees raw ids.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/njoerd114/bdcollect/internal/model"
)

// ErrUnauthorized is returned when the API rejects the session token.
var ErrUnauthorized = errors.New("catalog API returned 401 Unauthorized, check api_token")

// APIError is a failure reported in the "error" field of a response body.
// The API sometimes pairs it with a 200 status, so the field alone decides.
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// StatusError is an unexpected HTTP status without an error message.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog API returned unexpected status %d", e.Code)
}

// Client implements the sync engine's remote interface over HTTP+JSON.
// Create one with [NewClient] or [NewClientWithHTTP].
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the API rooted at baseURL. timeout bounds
// every single HTTP round trip, retries included separately.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return NewClientWithHTTP(baseURL, token, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTP creates a Client with a caller-supplied HTTP client.
// Intended for tests against an httptest server.
func NewClientWithHTTP(baseURL, token string, hc *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      hc,
		logger:  logger,
	}
}

// Ping checks that the API host answers at all. Any HTTP response counts,
// including error statuses; only transport failures are reported.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("ping catalog API: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

// --- Fetch ---------------------------------------------------------------

// FetchCollection downloads the owned list with retry.
func (c *Client) FetchCollection(ctx context.Context) ([]model.Album, error) {
	return c.fetch(ctx, "/collection", "fetch collection", false)
}

// FetchWishlist downloads the wanted list with retry.
func (c *Client) FetchWishlist(ctx context.Context) ([]model.Album, error) {
	return c.fetch(ctx, "/wishlist", "fetch wishlist", true)
}

func (c *Client) fetch(ctx context.Context, path, op string, wishlist bool) ([]model.Album, error) {
	var albums []model.Album
	err := Retry(ctx, defaultMaxAttempts, func() error {
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()

		albums, err = decodeList(body, op, wishlist, c.logger)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("fetched list", "op", op, "count", len(albums))
	return albums, nil
}

// --- Mutations -----------------------------------------------------------

// SetFlag sets or clears one flag on the album. Setting the same value twice
// is harmless, so the call is retried.
func (c *Client) SetFlag(ctx context.Context, id model.Identity, flag model.Flag, value bool) error {
	if !flag.Valid() {
		return fmt.Errorf("set flag: invalid flag %d", flag)
	}
	req := flagRequest{
		albumRequest: albumRequest{WorkID: id.WorkID, EditionID: id.EditionID},
		Flag:         flag.String(),
		Value:        model.FromBool(value).Wire(),
	}
	err := Retry(ctx, defaultMaxAttempts, func() error {
		return c.post(ctx, "/album/flag", "set flag", req)
	})
	if err != nil {
		return fmt.Errorf("set %s on %s: %w", flag, id, err)
	}
	c.logger.Debug("flag set", "work_id", id.WorkID, "edition_id", id.EditionID, "flag", flag.String(), "value", value)
	return nil
}

// DeleteFromCollection removes the album row from the user's lists.
func (c *Client) DeleteFromCollection(ctx context.Context, id model.Identity) error {
	return c.mutate(ctx, "/album/delete", "delete album", id)
}

// ExcludeItem hides the album from tracking.
func (c *Client) ExcludeItem(ctx context.Context, id model.Identity) error {
	return c.mutate(ctx, "/album/exclude", "exclude album", id)
}

// IncludeItem reverses [Client.ExcludeItem].
func (c *Client) IncludeItem(ctx context.Context, id model.Identity) error {
	return c.mutate(ctx, "/album/include", "include album", id)
}

func (c *Client) mutate(ctx context.Context, path, op string, id model.Identity) error {
	err := c.post(ctx, path, op, albumRequest{WorkID: id.WorkID, EditionID: id.EditionID})
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	c.logger.Debug(op, "work_id", id.WorkID, "edition_id", id.EditionID)
	return nil
}

// --- HTTP ----------------------------------------------------------------

func (c *Client) post(ctx context.Context, path, op string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}
	body, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	var env statusEnvelope
	if err := json.NewDecoder(body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	if env.Error != "" {
		return &APIError{Op: op, Message: env.Error}
	}
	return nil
}

// do executes one request and returns the body of a usable response. An
// error status whose body carries an "error" field yields an [*APIError];
// 401 always yields [ErrUnauthorized].
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		var env statusEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		if env.Error != "" {
			return nil, &APIError{Op: strings.TrimPrefix(path, "/"), Message: env.Error}
		}
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp.Body, nil
}
