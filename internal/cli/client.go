package cli

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

	"github.com/google/uuid"

	"streamerstock/internal/game"
	"streamerstock/internal/session"
)

// APIError is a non-2xx reply from the game server. Rejected intents carry
// the unchanged game state alongside the reason.
type APIError struct {
	Status  int
	Message string
	State   *session.State
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Rejected reports whether the server refused the intent on game rules.
func (e *APIError) Rejected() bool {
	return e.Status == http.StatusConflict
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			// Device-code sign-in blocks until the viewer approves.
			Timeout: 15 * time.Minute,
		},
	}
}

type stateEnvelope struct {
	State session.State `json:"state"`
}

func (c *Client) State(ctx context.Context) (session.State, error) {
	return c.stateRequest(ctx, http.MethodGet, "/v1/state", nil)
}

func (c *Client) Login(ctx context.Context) (session.State, error) {
	return c.stateRequest(ctx, http.MethodPost, "/v1/auth/login", nil)
}

func (c *Client) Logout(ctx context.Context) (session.State, error) {
	return c.stateRequest(ctx, http.MethodPost, "/v1/auth/logout", nil)
}

func (c *Client) Buy(ctx context.Context, commodityID string, quantity int64) (session.State, error) {
	return c.stateRequest(ctx, http.MethodPost, "/v1/trade/buy", map[string]any{
		"commodity_id": commodityID,
		"quantity":     quantity,
	})
}

func (c *Client) Sell(ctx context.Context, commodityID string, quantity int64) (session.State, error) {
	return c.stateRequest(ctx, http.MethodPost, "/v1/trade/sell", map[string]any{
		"commodity_id": commodityID,
		"quantity":     quantity,
	})
}

func (c *Client) Travel(ctx context.Context, locationID string) (session.State, error) {
	return c.stateRequest(ctx, http.MethodPost, "/v1/travel", map[string]any{
		"location_id": locationID,
	})
}

func (c *Client) PurchaseUpgrade(ctx context.Context, upgradeID string) (session.State, error) {
	return c.stateRequest(ctx, http.MethodPost, "/v1/upgrades/"+url.PathEscape(upgradeID)+"/purchase", map[string]any{})
}

func (c *Client) Events(ctx context.Context, limit int) ([]game.GameEvent, error) {
	var out struct {
		Events []game.GameEvent `json:"events"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, withLimit("/v1/events", limit), nil, &out)
	return out.Events, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	var out struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, withLimit("/v1/leaderboard", limit), nil, &out)
	return out.Rows, err
}

func (c *Client) stateRequest(ctx context.Context, method, path string, in any) (session.State, error) {
	var out stateEnvelope
	err := c.jsonRequest(ctx, method, path, in, &out)
	return out.State, err
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error string         `json:"error"`
		State *session.State `json:"state"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.State = payload.State
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}
