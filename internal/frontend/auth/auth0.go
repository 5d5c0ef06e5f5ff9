package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/chemcloud-org/chemcloud/internal/config"
)

// outboundTimeout bounds every call to the identity provider.
const outboundTimeout = 5 * time.Second

// UpstreamError carries an identity-provider rejection so the gateway
// can forward its status code and body verbatim.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream oauth error: status %d", e.StatusCode)
}

// TokenSet is the provider response of a successful flow.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// Auth0Client speaks to the Auth0 tenant configured at startup.
type Auth0Client struct {
	http     *resty.Client
	cfg      *config.Config
	tokenURL string
}

// NewAuth0Client builds the outbound client with the default timeout.
func NewAuth0Client(cfg *config.Config) *Auth0Client {
	return &Auth0Client{
		http:     resty.New().SetTimeout(outboundTimeout),
		cfg:      cfg,
		tokenURL: fmt.Sprintf("https://%s/oauth/token", cfg.Auth0Domain),
	}
}

// PasswordToken runs the resource-owner password flow. The audience
// makes Auth0 return a JWT rather than an opaque token; "openid" and
// "offline_access" yield the id and refresh tokens.
func (c *Auth0Client) PasswordToken(ctx context.Context, username, password, scope string) ([]byte, error) {
	return c.tokenRequest(ctx, map[string]string{
		"grant_type":    "password",
		"username":      username,
		"password":      password,
		"audience":      c.cfg.Auth0APIAudience,
		"client_id":     c.cfg.Auth0ClientID,
		"client_secret": c.cfg.Auth0ClientSecret,
		"scope":         scope,
	})
}

// RefreshToken runs the refresh-token flow.
func (c *Auth0Client) RefreshToken(ctx context.Context, refreshToken string) ([]byte, error) {
	return c.tokenRequest(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     c.cfg.Auth0ClientID,
		"client_secret": c.cfg.Auth0ClientSecret,
	})
}

func (c *Auth0Client) tokenRequest(ctx context.Context, form map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(form).
		Post(c.tokenURL)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	if resp.IsError() {
		return nil, &UpstreamError{StatusCode: resp.StatusCode(), Body: resp.Body()}
	}
	return resp.Body(), nil
}

// ExchangeCode trades an authorization code for tokens.
func (c *Auth0Client) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	conf := c.oauth2Config()
	ctx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, &UpstreamError{StatusCode: rErr.Response.StatusCode, Body: rErr.Body}
		}
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	set := &TokenSet{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
	}
	if id, ok := token.Extra("id_token").(string); ok {
		set.IDToken = id
	}
	return set, nil
}

func (c *Auth0Client) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.Auth0ClientID,
		ClientSecret: c.cfg.Auth0ClientSecret,
		RedirectURL:  c.cfg.BaseURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("https://%s/authorize", c.cfg.Auth0Domain),
			TokenURL: c.tokenURL,
		},
	}
}
