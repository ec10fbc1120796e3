package oidc

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
	"github.com/marcogenualdo/edge-bridge/internal/cache"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://idp.example.com"
	testClientID = "edge-client"
)

type fakeIdP struct {
	key        *rsa.PrivateKey
	server     *httptest.Server
	lastForm   url.Values
	idClaims   jwt.MapClaims
	exchangeOK bool
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{key: key, exchangeOK: true}
	idp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		idp.lastForm = r.PostForm
		if !idp.exchangeOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, idp.idClaims).SignedString(key)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(idp.server.Close)
	return idp
}

func newTestProvider(t *testing.T, idp *fakeIdP, c cache.Cache) *Provider {
	t.Helper()
	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{
		PublicKeys: []crypto.PublicKey{&idp.key.PublicKey},
	}, &oidc.Config{ClientID: testClientID})

	cfg := config.ProviderConfig{
		ID:   "corp",
		Name: "Corp",
		Type: "oidc",
		OIDC: &config.OIDCConfig{
			Issuer:       testIssuer,
			ClientID:     testClientID,
			ClientSecret: "secret",
			Scopes:       []string{"openid", "email", "profile"},
			HD:           "example.com",
		},
		ClaimMappings: map[string]string{
			"user_id":    "sub",
			"email":      "email",
			"name":       "name",
			"avatar_url": "picture",
		},
	}

	return newProvider(cfg, c, oauth2.Endpoint{
		AuthURL:   testIssuer + "/authorize",
		TokenURL:  idp.server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, verifier)
}

func startLogin(t *testing.T, p *Provider, c cache.Cache, returnTo string) (state string, authURL *url.URL) {
	t.Helper()
	redirect, err := p.InitiateAuth(context.Background(), "https://edge.example.com/auth/oidc/corp/callback", returnTo)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), redirect.CacheKey, redirect.CacheData, redirect.CacheTTL))

	authURL, err = url.Parse(redirect.URL)
	require.NoError(t, err)
	return authURL.Query().Get("state"), authURL
}

func TestProvider_InitiateAuth(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	p := newTestProvider(t, newFakeIdP(t), mc)

	state, authURL := startLogin(t, p, mc, "https://app.example.com/cb")

	q := authURL.Query()
	assert.NotEmpty(t, state)
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "example.com", q.Get("hd"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "https://edge.example.com/auth/oidc/corp/callback", q.Get("redirect_uri"))
	assert.Empty(t, p.oauth2Config.RedirectURL, "shared oauth2 config must not be mutated")
}

func TestProvider_HandleCallback(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	idp := newFakeIdP(t)
	p := newTestProvider(t, idp, mc)

	idp.idClaims = jwt.MapClaims{
		"iss":     testIssuer,
		"aud":     testClientID,
		"sub":     "user-42",
		"email":   "ada@example.com",
		"name":    "Ada",
		"picture": "https://cdn.example.com/ada.png",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}

	state, _ := startLogin(t, p, mc, "https://app.example.com/cb")

	req := httptest.NewRequest(http.MethodGet, "/auth/oidc/corp/callback?code=the-code&state="+state, nil)
	session, returnTo, err := p.HandleCallback(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/cb", returnTo)
	assert.Equal(t, "corp", session.ProviderID)
	assert.Equal(t, "oidc", session.ProviderType)
	assert.Equal(t, "user-42", session.Identity.UserID)
	assert.Equal(t, "ada@example.com", session.Identity.Email)
	assert.Equal(t, "Ada", session.Identity.Name)
	assert.Equal(t, "https://cdn.example.com/ada.png", session.Identity.AvatarURL)

	assert.Equal(t, "the-code", idp.lastForm.Get("code"))
	assert.NotEmpty(t, idp.lastForm.Get("code_verifier"))

	_, _, err = p.HandleCallback(context.Background(), req)
	assert.Error(t, err, "state is consumed by the first callback")
}

func TestProvider_HandleCallbackFailures(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	idp := newFakeIdP(t)
	p := newTestProvider(t, idp, mc)

	t.Run("missing code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cb?state=x", nil)
		_, _, err := p.HandleCallback(context.Background(), req)
		assert.ErrorContains(t, err, "missing code")
	})

	t.Run("unknown state", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cb?code=c&state=unknown", nil)
		_, _, err := p.HandleCallback(context.Background(), req)
		assert.ErrorContains(t, err, "invalid or expired state")
	})

	t.Run("wrong audience", func(t *testing.T) {
		idp.idClaims = jwt.MapClaims{
			"iss": testIssuer,
			"aud": "someone-else",
			"sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		state, _ := startLogin(t, p, mc, "")
		req := httptest.NewRequest(http.MethodGet, "/cb?code=c&state="+state, nil)
		_, _, err := p.HandleCallback(context.Background(), req)
		assert.ErrorContains(t, err, "failed to verify ID token")
	})

	t.Run("missing subject claim", func(t *testing.T) {
		idp.idClaims = jwt.MapClaims{
			"iss": testIssuer,
			"aud": testClientID,
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		state, _ := startLogin(t, p, mc, "")
		req := httptest.NewRequest(http.MethodGet, "/cb?code=c&state="+state, nil)
		_, _, err := p.HandleCallback(context.Background(), req)
		assert.ErrorContains(t, err, "user_id")
	})

	t.Run("exchange rejected", func(t *testing.T) {
		idp.exchangeOK = false
		defer func() { idp.exchangeOK = true }()
		state, _ := startLogin(t, p, mc, "")
		req := httptest.NewRequest(http.MethodGet, "/cb?code=c&state="+state, nil)
		_, _, err := p.HandleCallback(context.Background(), req)
		assert.ErrorContains(t, err, "failed to exchange code")
	})
}
