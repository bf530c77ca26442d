package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the judgeboard HTTP API.
type Client struct {
	http *http.Client
	base string
}

// NewClient returns a Client for the server at base.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}, base: base}
}

type envelope[T any] struct {
	Success  bool      `json:"success"`
	Data     T         `json:"data"`
	Metadata *Metadata `json:"metadata"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
}

// do sends body as JSON and decodes a response envelope into out when the
// status is one of want.
func do[T any](ctx context.Context, c *Client, method, path, token string, body any, want ...int) (envelope[T], int, error) {
	var out envelope[T]
	var rd io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return out, 0, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return out, 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, resp.StatusCode, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	_ = json.Unmarshal(raw, &out)
	for _, w := range want {
		if resp.StatusCode == w {
			return out, resp.StatusCode, nil
		}
	}
	return out, resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, method, path, resp.StatusCode, out.Message)
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthz: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// ServerSettings are the parts of GET /stats a run depends on.
type ServerSettings struct {
	AggregationMode string `json:"aggregationMode"`
	ScoreMin        int    `json:"scoreMin"`
	ScoreMax        int    `json:"scoreMax"`
}

// Settings reads the server's scoring configuration.
func (c *Client) Settings(ctx context.Context) (ServerSettings, error) {
	env, _, err := do[ServerSettings](ctx, c, http.MethodGet, "/stats", "", nil, http.StatusOK)
	return env.Data, err
}

// JudgeForm is the registration body.
type JudgeForm struct {
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	BarNumber    string `json:"bar_number"`
	LicenseState string `json:"license_state"`
	Password     string `json:"password"`
}

type idResponse struct {
	ID string `json:"id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// RegisterJudge creates a judge and returns its id.
func (c *Client) RegisterJudge(ctx context.Context, form JudgeForm) (string, error) {
	env, _, err := do[idResponse](ctx, c, http.MethodPost, "/judges", "", form, http.StatusCreated)
	return env.Data.ID, err
}

// Login returns a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	env, _, err := do[tokenResponse](ctx, c, http.MethodPost, "/login", "", map[string]string{"username": username, "password": password}, http.StatusOK)
	return env.Data.Token, err
}

// Participants lists participant ids.
func (c *Client) Participants(ctx context.Context) ([]string, error) {
	env, _, err := do[[]Standing](ctx, c, http.MethodGet, "/participants", "", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(env.Data))
	for i, p := range env.Data {
		ids[i] = p.ID
	}
	return ids, nil
}

// Submit posts one score and reports whether it created a new row.
func (c *Client) Submit(ctx context.Context, token, participantID string, score int) (created bool, err error) {
	_, status, err := do[json.RawMessage](ctx, c, http.MethodPost, "/scores", token, map[string]any{
		"participant_id": participantID,
		"score":          score,
	}, http.StatusCreated, http.StatusOK)
	return status == http.StatusCreated, err
}

// Scoreboard polls GET /scoreboard.
func (c *Client) Scoreboard(ctx context.Context) (Board, error) {
	env, _, err := do[[]Standing](ctx, c, http.MethodGet, "/scoreboard", "", nil, http.StatusOK)
	if err != nil {
		return Board{}, err
	}
	b := Board{Standings: env.Data}
	if env.Metadata != nil {
		b.Metadata = *env.Metadata
	}
	return b, nil
}
