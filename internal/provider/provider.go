package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/oauth2"

	"github.com/geocoder89/authgate/internal/auth"
	"github.com/geocoder89/authgate/internal/config"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingCode     = errors.New("authorization code missing")
	ErrEmailUnverified = errors.New("provider email is not verified")
)

// Provider runs one identity provider's authorization-code handshake and
// turns its result into a ProviderIdentity.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.ProviderIdentity, error)
}

// Settings are what every provider needs. Endpoint and APIBase are left
// empty in production and overridden by tests.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	Endpoint *oauth2.Endpoint
	APIBase  string
}

func (s Settings) oauthConfig(def oauth2.Endpoint, scopes ...string) *oauth2.Config {
	ep := def
	if s.Endpoint != nil {
		ep = *s.Endpoint
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Endpoint:     ep,
		Scopes:       scopes,
	}
}

func (s Settings) apiBase(def string) string {
	if s.APIBase != "" {
		return strings.TrimRight(s.APIBase, "/")
	}
	return def
}

// CallbackURL is where a provider sends the browser back to.
func CallbackURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/api/auth/callback/" + name
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// Names lists the configured providers in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return []string{}
	}
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds a registry holding every provider that has a client id.
func FromConfig(ctx context.Context, cfg config.Config) *Registry {
	settings := func(name string, c config.OAuthClient) Settings {
		return Settings{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  CallbackURL(cfg.Auth.BaseURL, name),
		}
	}

	var ps []Provider
	if c := cfg.Providers.Google; c.Enabled() {
		ps = append(ps, NewGoogle(ctx, settings(GoogleName, c), nil))
	}
	if c := cfg.Providers.Facebook; c.Enabled() {
		ps = append(ps, NewFacebook(settings(FacebookName, c)))
	}
	if c := cfg.Providers.Line; c.Enabled() {
		ps = append(ps, NewLine(settings(LineName, c)))
	}
	return NewRegistry(ps...)
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

func idTokenFrom(tok *oauth2.Token) string {
	raw, _ := tok.Extra("id_token").(string)
	return raw
}
