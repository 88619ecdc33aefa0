// Package auth supplies the identity of the signed-in user. A nil identity
// means guest mode.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/comigor/sonar-go/internal/config"
	"github.com/comigor/sonar-go/internal/logger"
)

// Identity is an authenticated user.
type Identity struct {
	UID         string
	DisplayName string
	Email       string
}

// Name is the display name, falling back to the email.
func (i *Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Email
}

// Provider returns the current user, or nil for a guest.
type Provider interface {
	CurrentUser(ctx context.Context) (*Identity, error)
}

// Guest never has a signed-in user.
type Guest struct{}

// CurrentUser implements Provider.
func (Guest) CurrentUser(context.Context) (*Identity, error) { return nil, nil }

// Static returns a fixed identity. An identity without name and email is a guest.
type Static struct {
	Identity Identity
}

// CurrentUser implements Provider.
func (s Static) CurrentUser(context.Context) (*Identity, error) {
	if s.Identity.DisplayName == "" && s.Identity.Email == "" {
		return nil, nil
	}
	id := s.Identity
	if id.UID == "" {
		id.UID = strings.ToLower(id.Email)
		if id.UID == "" {
			id.UID = id.DisplayName
		}
	}
	return &id, nil
}

// ErrInvalidToken is returned when the identity endpoint rejects the ID token.
var ErrInvalidToken = errors.New("invalid id token")

// IdentityToolkit resolves an ID token through the accounts:lookup REST call
// of a Firebase-compatible identity endpoint.
type IdentityToolkit struct {
	endpoint string
	apiKey   string
	idToken  string
	client   *http.Client
}

// NewIdentityToolkit creates a toolkit provider.
func NewIdentityToolkit(endpoint, apiKey, idToken string) *IdentityToolkit {
	return &IdentityToolkit{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		idToken:  idToken,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// CurrentUser implements Provider. Without an ID token the user is a guest.
func (p *IdentityToolkit) CurrentUser(ctx context.Context) (*Identity, error) {
	if p.idToken == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/accounts:lookup?key=%s", p.endpoint, url.QueryEscape(p.apiKey))
	body, err := json.Marshal(map[string]string{"idToken": p.idToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, gjson.GetBytes(data, "error.message").String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	user := gjson.GetBytes(data, "users.0")
	if !user.Exists() {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UID:         user.Get("localId").String(),
		DisplayName: user.Get("displayName").String(),
		Email:       user.Get("email").String(),
	}, nil
}

// FromConfig builds the provider selected by cfg.
func FromConfig(cfg config.IdentityConfig) Provider {
	switch cfg.Provider {
	case "static":
		return Static{Identity: Identity{DisplayName: cfg.DisplayName, Email: cfg.Email}}
	case "identitytoolkit":
		return NewIdentityToolkit(cfg.Endpoint, cfg.APIKey, cfg.IDToken)
	default:
		return Guest{}
	}
}

// Resolve asks p for the current user and degrades to guest mode on error.
func Resolve(ctx context.Context, p Provider) *Identity {
	id, err := p.CurrentUser(ctx)
	if err != nil {
		logger.L.Warn("identity lookup failed; continuing as guest", "error", err)
		return nil
	}
	return id
}
