package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/geocoder89/authgate/internal/auth"
)

const (
	FacebookName = "facebook"

	facebookGraph = "https://graph.facebook.com"
)

type Facebook struct {
	oauth *oauth2.Config
	graph string
}

type facebookProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func NewFacebook(s Settings) *Facebook {
	return &Facebook{
		oauth: s.oauthConfig(facebook.Endpoint, "email", "public_profile"),
		graph: s.apiBase(facebookGraph),
	}
}

func (f *Facebook) Name() string { return FacebookName }

func (f *Facebook) AuthCodeURL(state string) string {
	return f.oauth.AuthCodeURL(state)
}

func (f *Facebook) Exchange(ctx context.Context, code string) (auth.ProviderIdentity, error) {
	tok, err := exchange(ctx, f.oauth, code)
	if err != nil {
		return auth.ProviderIdentity{}, err
	}

	var p facebookProfile
	url := f.graph + "/me?fields=id,name,email,picture"
	if err := getJSON(ctx, f.oauth.Client(ctx, tok), url, &p); err != nil {
		return auth.ProviderIdentity{}, fmt.Errorf("facebook: %w", err)
	}

	return auth.ProviderIdentity{
		Provider: FacebookName,
		ID:       p.ID,
		Email:    p.Email,
		Name:     p.Name,
		Image:    p.Picture.Data.URL,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	return nil
}
