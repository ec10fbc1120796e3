package usersync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMinter struct{ err error }

func (m stubMinter) Mint(id string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "assertion-for-" + id, nil
}

var markerKey = []byte("marker-key")

var ada = auth.Identity{UserID: "user-42", Name: "Ada", Email: "ada@example.com", AvatarURL: "https://cdn.example.com/ada.png"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGate_SyncsOnMissingMarker(t *testing.T) {
	var calls atomic.Int32
	var got syncRequest
	var authHeader, contentType string

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users/sync", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	gate := NewGate(backend.Client(), backend.URL+"/", "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())

	res := gate.MaybeSync(context.Background(), ada, "")
	assert.Equal(t, Result{Synced: true, SetMarker: true, Marker: gate.Marker("user-42")}, res)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Bearer assertion-for-user-42", authHeader)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, syncRequest{UserID: "user-42", Name: "Ada", Email: "ada@example.com", AvatarURL: "https://cdn.example.com/ada.png"}, got)
}

func TestGate_SkipsWhenMarkerMatches(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer backend.Close()

	gate := NewGate(backend.Client(), backend.URL, "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())

	res := gate.MaybeSync(context.Background(), ada, gate.Marker("user-42"))
	assert.Equal(t, Result{}, res)
	assert.Zero(t, calls.Load())
}

func TestGate_RawUserIDIsNotAMarker(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer backend.Close()

	gate := NewGate(backend.Client(), backend.URL, "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())

	res := gate.MaybeSync(context.Background(), ada, "user-42")
	assert.True(t, res.SetMarker)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGate_MarkerIsCookieSafe(t *testing.T) {
	gate := NewGate(http.DefaultClient, "http://127.0.0.1:1", "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())
	other := NewGate(http.DefaultClient, "http://127.0.0.1:1", "/api/users/sync", stubMinter{}, []byte("other-key"), time.Second, discardLogger())

	ids := []string{"user-42", `CORP\ada`, "josé@example.com", `a "quoted"; id, here`}
	seen := map[string]bool{}
	for _, id := range ids {
		marker := gate.Marker(id)
		assert.Regexp(t, `^[A-Za-z0-9_-]+$`, marker, id)
		assert.Equal(t, marker, gate.Marker(id), "marker is stable")
		assert.NotEqual(t, marker, other.Marker(id), "marker depends on the key")
		assert.False(t, seen[marker], id)
		seen[marker] = true
	}
}

func TestGate_ResyncsWhenMarkerNamesAnotherUser(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	gate := NewGate(backend.Client(), backend.URL, "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())

	res := gate.MaybeSync(context.Background(), ada, gate.Marker("user-7"))
	assert.True(t, res.SetMarker)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGate_NoUserNoSync(t *testing.T) {
	gate := NewGate(http.DefaultClient, "http://127.0.0.1:1", "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())
	assert.Equal(t, Result{}, gate.MaybeSync(context.Background(), auth.Identity{}, ""))
}

func TestGate_FailuresSetNoMarker(t *testing.T) {
	t.Run("backend error status", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer backend.Close()

		gate := NewGate(backend.Client(), backend.URL, "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())
		assert.Equal(t, Result{}, gate.MaybeSync(context.Background(), ada, ""))
	})

	t.Run("backend unreachable", func(t *testing.T) {
		backend := httptest.NewServer(http.NotFoundHandler())
		url := backend.URL
		backend.Close()

		gate := NewGate(http.DefaultClient, url, "/api/users/sync", stubMinter{}, markerKey, time.Second, discardLogger())
		assert.Equal(t, Result{}, gate.MaybeSync(context.Background(), ada, ""))
	})

	t.Run("backend too slow", func(t *testing.T) {
		release := make(chan struct{})
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer backend.Close()
		defer close(release)

		gate := NewGate(backend.Client(), backend.URL, "/api/users/sync", stubMinter{}, markerKey, 50*time.Millisecond, discardLogger())
		assert.Equal(t, Result{}, gate.MaybeSync(context.Background(), ada, ""))
	})

	t.Run("mint failure", func(t *testing.T) {
		var calls atomic.Int32
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer backend.Close()

		gate := NewGate(backend.Client(), backend.URL, "/api/users/sync", stubMinter{err: errors.New("boom")}, markerKey, time.Second, discardLogger())
		assert.Equal(t, Result{}, gate.MaybeSync(context.Background(), ada, ""))
		assert.Zero(t, calls.Load())
	})
}
