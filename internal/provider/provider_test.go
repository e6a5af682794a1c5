package provider

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/geocoder89/authgate/internal/config"
)

// fakeIdP serves a token endpoint plus whatever profile routes a test adds.
func fakeIdP(t *testing.T, tokenExtra map[string]any, routes map[string]any) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		body := map[string]any{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		for k, v := range tokenExtra {
			body[k] = v
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	for path, payload := range routes {
		payload := payload
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer at-123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(payload)
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testSettings(srv *httptest.Server) Settings {
	return Settings{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURL:  "http://localhost:8080/api/auth/callback/x",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		APIBase: srv.URL,
	}
}

func TestGoogle_Exchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	const issuer = "https://issuer.test"
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":            issuer,
			"aud":            "client-1",
			"sub":            "g-42",
			"exp":            time.Now().Add(time.Hour).Unix(),
			"iat":            time.Now().Unix(),
			"email":          "ada@example.com",
			"email_verified": true,
			"name":           "Ada",
			"picture":        "https://img.test/ada.png",
		}
	}
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}

	t.Run("verified id token", func(t *testing.T) {
		srv := fakeIdP(t, map[string]any{"id_token": sign(base())}, nil)
		s := testSettings(srv)
		s.APIBase = issuer

		g := NewGoogle(context.Background(), s, keys)
		id, err := g.Exchange(context.Background(), "good-code")
		require.NoError(t, err)

		assert.Equal(t, "google", id.Provider)
		assert.Equal(t, "g-42", id.ID)
		assert.Equal(t, "ada@example.com", id.Email)
		assert.Equal(t, "Ada", id.Name)
		assert.Equal(t, "https://img.test/ada.png", id.Image)
	})

	t.Run("unverified email", func(t *testing.T) {
		c := base()
		c["email_verified"] = false
		srv := fakeIdP(t, map[string]any{"id_token": sign(c)}, nil)
		s := testSettings(srv)
		s.APIBase = issuer

		_, err := NewGoogle(context.Background(), s, keys).Exchange(context.Background(), "good-code")
		require.ErrorIs(t, err, ErrEmailUnverified)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := base()
		c["aud"] = "someone-else"
		srv := fakeIdP(t, map[string]any{"id_token": sign(c)}, nil)
		s := testSettings(srv)
		s.APIBase = issuer

		_, err := NewGoogle(context.Background(), s, keys).Exchange(context.Background(), "good-code")
		require.Error(t, err)
	})

	t.Run("missing id token", func(t *testing.T) {
		srv := fakeIdP(t, nil, nil)
		s := testSettings(srv)
		s.APIBase = issuer

		_, err := NewGoogle(context.Background(), s, keys).Exchange(context.Background(), "good-code")
		require.Error(t, err)
	})

	t.Run("empty code", func(t *testing.T) {
		srv := fakeIdP(t, nil, nil)
		_, err := NewGoogle(context.Background(), testSettings(srv), keys).Exchange(context.Background(), " ")
		require.ErrorIs(t, err, ErrMissingCode)
	})
}

func TestFacebook_Exchange(t *testing.T) {
	profile := map[string]any{
		"id":    "fb-7",
		"name":  "Grace",
		"email": "grace@example.com",
		"picture": map[string]any{
			"data": map[string]any{"url": "https://img.test/grace.png"},
		},
	}
	srv := fakeIdP(t, nil, map[string]any{"/me": profile})

	fb := NewFacebook(testSettings(srv))

	id, err := fb.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "fb-7", id.ID)
	assert.Equal(t, "grace@example.com", id.Email)
	assert.Equal(t, "https://img.test/grace.png", id.Image)

	_, err = fb.Exchange(context.Background(), "bad-code")
	require.Error(t, err)
}

func TestLine_Exchange(t *testing.T) {
	profile := map[string]any{
		"userId":      "U123",
		"displayName": "Linus",
		"pictureUrl":  "https://img.test/linus.png",
	}
	idToken := func(secret, aud string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss":   lineIssuer,
			"aud":   aud,
			"sub":   "U123",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"email": "linus@example.com",
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	t.Run("email from id token", func(t *testing.T) {
		srv := fakeIdP(t, map[string]any{"id_token": idToken("secret-1", "client-1")}, map[string]any{"/v2/profile": profile})

		id, err := NewLine(testSettings(srv)).Exchange(context.Background(), "good-code")
		require.NoError(t, err)
		assert.Equal(t, "U123", id.ID)
		assert.Equal(t, "linus@example.com", id.Email)
		assert.Equal(t, "Linus", id.Name)
	})

	t.Run("no id token leaves email empty", func(t *testing.T) {
		srv := fakeIdP(t, nil, map[string]any{"/v2/profile": profile})

		id, err := NewLine(testSettings(srv)).Exchange(context.Background(), "good-code")
		require.NoError(t, err)
		assert.Empty(t, id.Email)
		assert.Equal(t, "U123@line.com", id.LookupEmail())
	})

	t.Run("id token signed with another secret", func(t *testing.T) {
		srv := fakeIdP(t, map[string]any{"id_token": idToken("other", "client-1")}, map[string]any{"/v2/profile": profile})

		_, err := NewLine(testSettings(srv)).Exchange(context.Background(), "good-code")
		require.Error(t, err)
	})
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	srv := fakeIdP(t, nil, nil)
	l := NewLine(testSettings(srv))

	u, err := url.Parse(l.AuthCodeURL("st-1"))
	require.NoError(t, err)
	assert.Equal(t, "st-1", u.Query().Get("state"))
	assert.Equal(t, "client-1", u.Query().Get("client_id"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Config{
		Auth: config.Auth{BaseURL: "https://auth.example.com/"},
		Providers: config.Providers{
			Facebook: config.OAuthClient{ClientID: "fb", ClientSecret: "s"},
			Line:     config.OAuthClient{ClientID: "ln", ClientSecret: "s"},
		},
	}

	reg := FromConfig(context.Background(), cfg)
	assert.Equal(t, []string{"facebook", "line"}, reg.Names())

	_, err := reg.Get("google")
	require.ErrorIs(t, err, ErrUnknownProvider)

	p, err := reg.Get("line")
	require.NoError(t, err)

	u, err := url.Parse(p.AuthCodeURL("s"))
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/api/auth/callback/line", u.Query().Get("redirect_uri"))
}
