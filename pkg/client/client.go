package client

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

	"github.com/gridsync/gridsync/pkg/types"
)

// Client is the typed HTTP client for the gridsync API. It attaches
// the token as a header (never a query parameter) and maps transport
// and status failures onto the shared error taxonomy.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the API at baseURL. token may be empty for
// open deployments.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type snapshotEnvelope struct {
	OK          bool        `json:"ok"`
	Error       string      `json:"error"`
	Version     uint64      `json:"version"`
	Headers     []string    `json:"headers"`
	Rows        []types.Row `json:"rows"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

type changesEnvelope struct {
	OK              bool                 `json:"ok"`
	Error           string               `json:"error"`
	FromVersion     uint64               `json:"fromVersion"`
	ToVersion       uint64               `json:"toVersion"`
	Changes         []types.ChangeRecord `json:"changes"`
	NeedsFullResync bool                 `json:"needsFullResync"`
}

// Snapshot fetches the full authoritative state of a sheet.
func (c *Client) Snapshot(ctx context.Context, sheet string) (*types.Snapshot, error) {
	q := url.Values{}
	q.Set("sheet", sheet)

	var env snapshotEnvelope
	if err := c.doJSON(ctx, "/v1/snapshot?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	return &types.Snapshot{
		Sheet:       sheet,
		Version:     env.Version,
		Headers:     env.Headers,
		Rows:        env.Rows,
		GeneratedAt: env.GeneratedAt,
	}, nil
}

// Changes fetches all change records with changeId greater than since.
func (c *Client) Changes(ctx context.Context, sheet string, since uint64) (*types.Delta, error) {
	q := url.Values{}
	q.Set("sheet", sheet)
	q.Set("since", strconv.FormatUint(since, 10))

	var env changesEnvelope
	if err := c.doJSON(ctx, "/v1/changes?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	return &types.Delta{
		Sheet:           sheet,
		FromVersion:     env.FromVersion,
		ToVersion:       env.ToVersion,
		Changes:         env.Changes,
		NeedsFullResync: env.NeedsFullResync,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransient, err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: invalid response body: %v", types.ErrTransient, err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusError(status int, body []byte) error {
	var env struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &env)
	msg := env.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", types.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", types.ErrNotFound, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", types.ErrSchema, msg)
	default:
		return fmt.Errorf("%w: http %d: %s", types.ErrTransient, status, msg)
	}
}
