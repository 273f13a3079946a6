package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const GoogleIssuer = "https://accounts.google.com"

var (
	// ErrExchangeFailed covers transport errors and non-success responses
	// from the provider's token endpoint.
	ErrExchangeFailed = errors.New("identity: code exchange failed")

	// ErrInvalidIdentityAssertion means the returned ID token did not pass
	// signature, issuer, audience or time validation.
	ErrInvalidIdentityAssertion = errors.New("identity: invalid identity assertion")
)

// Config controls the authorization-code exchange and ID token validation.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Leeway is the clock skew tolerated on exp/iat/nbf.
	Leeway time.Duration
}

// Exchanger turns an authorization code into a verified User.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (User, error)
}

type googleClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// OIDCExchanger performs the code exchange against the provider's token
// endpoint and validates the ID token against the provider's JWKS.
type OIDCExchanger struct {
	oauth   *oauth2.Config
	keyfunc jwt.Keyfunc
	issuers []string
	cfg     Config
}

// NewOIDCExchanger runs OIDC discovery against cfg.Issuer to learn the token
// endpoint and JWKS location. JWKS keys are refreshed in the background for
// the life of ctx.
func NewOIDCExchanger(ctx context.Context, cfg Config) (*OIDCExchanger, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &OIDCExchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		keyfunc: kf.Keyfunc,
		issuers: acceptedIssuers(meta.Issuer),
		cfg:     cfg,
	}, nil
}

func (e *OIDCExchanger) ExchangeCode(ctx context.Context, code string) (User, error) {
	if code == "" {
		return User{}, fmt.Errorf("%w: empty authorization code", ErrExchangeFailed)
	}
	tok, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return User{}, fmt.Errorf("%w: token response has no id_token", ErrInvalidIdentityAssertion)
	}
	return e.VerifyIDToken(raw)
}

// VerifyIDToken validates an ID token and normalizes its claims.
func (e *OIDCExchanger) VerifyIDToken(raw string) (User, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(e.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(e.cfg.Leeway),
	)
	claims := &googleClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, e.keyfunc); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidIdentityAssertion, err)
	}
	if !contains(e.issuers, claims.Issuer) {
		return User{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidIdentityAssertion)
	}
	if claims.Subject == "" || claims.Email == "" {
		return User{}, fmt.Errorf("%w: missing sub or email", ErrInvalidIdentityAssertion)
	}
	return User{
		ID:      claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// acceptedIssuers allows the scheme-less form Google also puts in "iss".
func acceptedIssuers(issuer string) []string {
	out := []string{issuer}
	if bare := strings.TrimPrefix(issuer, "https://"); bare != issuer {
		out = append(out, bare)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
