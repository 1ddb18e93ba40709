package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

const (
	twitchDeviceAuthURL = "https://id.twitch.tv/oauth2/device"
	twitchHelixBaseURL  = "https://api.twitch.tv/helix"
)

// DefaultTwitchScopes lets the game read the signed-in user and their channel
// point rewards.
var DefaultTwitchScopes = []string{"user:read:email", "channel:read:redemptions"}

type TwitchConfig struct {
	ClientID      string
	Scopes        []string
	InitialPoints int64

	// Endpoint overrides; empty means the public Twitch endpoints.
	DeviceAuthURL string
	TokenURL      string
	HelixBaseURL  string

	HTTPClient *http.Client
	// Prompt is shown the user code and verification URL while the device
	// flow waits for approval.
	Prompt func(userCode, verificationURL string)
}

// Twitch signs in with the OAuth device code flow and reads the user from the
// Helix API.
type Twitch struct {
	cfg    TwitchConfig
	oauth  *oauth2.Config
	creds  CredentialStore
	log    *slog.Logger
	client *http.Client
}

func NewTwitch(cfg TwitchConfig, creds CredentialStore, logger *slog.Logger) *Twitch {
	if logger == nil {
		logger = slog.Default()
	}
	if creds == nil {
		creds = &MemoryCredentials{}
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultTwitchScopes
	}
	if cfg.HelixBaseURL == "" {
		cfg.HelixBaseURL = twitchHelixBaseURL
	}
	cfg.HelixBaseURL = strings.TrimRight(cfg.HelixBaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	endpoint := twitch.Endpoint
	endpoint.DeviceAuthURL = twitchDeviceAuthURL
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if cfg.DeviceAuthURL != "" {
		endpoint.DeviceAuthURL = cfg.DeviceAuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &Twitch{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: endpoint,
			Scopes:   cfg.Scopes,
		},
		creds:  creds,
		log:    logger,
		client: client,
	}
}

func (t *Twitch) Authenticate(ctx context.Context) (Identity, error) {
	if strings.TrimSpace(t.cfg.ClientID) == "" {
		return Identity{}, fmt.Errorf("%w: twitch client id is not configured", ErrAuthFailed)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)
	// Twitch reads the space separated scope list from "scopes".
	scopes := oauth2.SetAuthURLParam("scopes", strings.Join(t.cfg.Scopes, " "))

	da, err := t.oauth.DeviceAuth(ctx, scopes)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: device authorization: %v", ErrAuthFailed, err)
	}
	verification := da.VerificationURIComplete
	if verification == "" {
		verification = da.VerificationURI
	}
	if t.cfg.Prompt != nil {
		t.cfg.Prompt(da.UserCode, verification)
	}
	t.log.Info("waiting for twitch device approval", "verification_url", verification)

	tok, err := t.oauth.DeviceAccessToken(ctx, da, scopes)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: device token: %v", ErrAuthFailed, err)
	}
	identity, err := t.fetchUser(ctx, tok)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if err := t.creds.Save(Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Identity:     identity,
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: save credentials: %v", ErrAuthFailed, err)
	}
	return identity, nil
}

type helixUsersResponse struct {
	Data []struct {
		ID              string `json:"id"`
		Login           string `json:"login"`
		DisplayName     string `json:"display_name"`
		ProfileImageURL string `json:"profile_image_url"`
		Email           string `json:"email"`
	} `json:"data"`
}

func (t *Twitch) fetchUser(ctx context.Context, tok *oauth2.Token) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.HelixBaseURL+"/users", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Client-Id", t.cfg.ClientID)
	resp, err := t.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("helix users: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Identity{}, fmt.Errorf("helix users status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out helixUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Identity{}, fmt.Errorf("decode helix users: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].ID == "" {
		return Identity{}, fmt.Errorf("helix users: empty response")
	}
	u := out.Data[0]
	return Identity{
		ID:          u.ID,
		Login:       u.Login,
		DisplayName: u.DisplayName,
		AvatarURL:   u.ProfileImageURL,
		Email:       u.Email,
	}, nil
}

func (t *Twitch) StoredIdentity() (Identity, bool) {
	c, ok := t.load()
	if !ok {
		return Identity{}, false
	}
	return c.Identity, true
}

func (t *Twitch) StoredToken() (string, bool) {
	c, ok := t.load()
	if !ok {
		return "", false
	}
	return c.AccessToken, true
}

func (t *Twitch) load() (Credentials, bool) {
	c, ok, err := t.creds.Load()
	if err != nil {
		t.log.Warn("stored credentials unreadable", "err", err)
		return Credentials{}, false
	}
	return c, ok
}

func (t *Twitch) Logout() error {
	return t.creds.Clear()
}

// InitialPoints is a configured grant; reading a viewer's real channel point
// balance needs the broadcaster's token, which the game does not have.
func (t *Twitch) InitialPoints(context.Context) (int64, error) {
	return t.cfg.InitialPoints, nil
}
