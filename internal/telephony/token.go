package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	twiliojwt "github.com/twilio/twilio-go/client/jwt"

	"sales-dialer/internal/timer"
)

// TokenSource obtains a short-lived signaling credential for an identity.
type TokenSource interface {
	FetchToken(ctx context.Context, identity string) (string, error)
}

// TokenExpiry reads the exp claim without verifying the signature; the
// provider verifies, this side only needs to know when to refresh.
func TokenExpiry(token string) (time.Time, error) {
	var claims gojwt.RegisteredClaims
	if _, _, err := gojwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("telephony: parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("telephony: token has no exp")
	}
	return claims.ExpiresAt.Time, nil
}

type VoiceTokenConfig struct {
	AccountSID   string
	APIKeySID    string
	APIKeySecret string
	TwiMLAppSID  string
	TTL          time.Duration
}

// VoiceTokenIssuer mints Twilio access tokens carrying a voice grant.
// It backs the token endpoint and doubles as an in-process TokenSource.
type VoiceTokenIssuer struct {
	cfg VoiceTokenConfig
}

func NewVoiceTokenIssuer(cfg VoiceTokenConfig) (*VoiceTokenIssuer, error) {
	if cfg.AccountSID == "" || cfg.APIKeySID == "" || cfg.APIKeySecret == "" {
		return nil, errors.New("telephony: twilio account sid and api key are required")
	}
	if cfg.TwiMLAppSID == "" {
		return nil, errors.New("telephony: twiml app sid is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &VoiceTokenIssuer{cfg: cfg}, nil
}

func (i *VoiceTokenIssuer) Issue(identity string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", errors.New("telephony: identity required")
	}
	grant := &twiliojwt.VoiceGrant{}
	grant.Incoming.Allow = true
	grant.Outgoing.ApplicationSid = i.cfg.TwiMLAppSID

	tok := twiliojwt.CreateAccessToken(twiliojwt.AccessTokenParams{
		AccountSid:    i.cfg.AccountSID,
		SigningKeySid: i.cfg.APIKeySID,
		Secret:        i.cfg.APIKeySecret,
		Identity:      identity,
		Ttl:           i.cfg.TTL.Seconds(),
	})
	tok.AddGrant(grant)
	return tok.ToJwt()
}

func (i *VoiceTokenIssuer) FetchToken(_ context.Context, identity string) (string, error) {
	return i.Issue(identity)
}

// VoiceApplicationSID returns the outgoing application SID of a voice token.
// An empty key skips signature validation.
func VoiceApplicationSID(token, key string) (string, error) {
	decoded, err := (&twiliojwt.AccessToken{}).FromJwt(token, key)
	if err != nil {
		return "", fmt.Errorf("telephony: decode voice token: %w", err)
	}
	for _, g := range decoded.Grants {
		if vg, ok := g.(*twiliojwt.VoiceGrant); ok && vg.Outgoing.ApplicationSid != "" {
			return vg.Outgoing.ApplicationSid, nil
		}
	}
	return "", errors.New("telephony: token has no outgoing voice grant")
}

// HTTPTokenSource fetches tokens from a remote token endpoint that answers
// {"token": "..."}.
type HTTPTokenSource struct {
	Endpoint string
	// Bearer is sent as the Authorization header when set.
	Bearer string
	Client *http.Client
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s HTTPTokenSource) FetchToken(ctx context.Context, identity string) (string, error) {
	if s.Endpoint == "" {
		return "", errors.New("telephony: token endpoint not configured")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("identity", identity)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	if s.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+s.Bearer)
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telephony: token endpoint returned %d", resp.StatusCode)
	}
	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("telephony: decode token response: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("telephony: empty token in response")
	}
	return body.Token, nil
}

// SimTokenSource mints self-signed HS256 tokens for the sim provider. They
// carry an exp so the adapter's refresh schedule runs as it would against
// a real provider.
type SimTokenSource struct {
	Clock timer.Clock
	TTL   time.Duration
	Key   []byte
}

func (s SimTokenSource) FetchToken(_ context.Context, identity string) (string, error) {
	if identity == "" {
		return "", errors.New("telephony: identity required")
	}
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock.Now()
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	key := s.Key
	if len(key) == 0 {
		key = []byte("sim")
	}
	claims := gojwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(key)
}
