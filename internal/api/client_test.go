package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haimi-h/shopify-clone-sub000/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, store session.Store) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientOpts{BaseURL: srv.URL + "/", Store: store})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientOpts{Store: session.NewMemoryStore(session.Session{})})
	assert.ErrorContains(t, err, "base URL is required")

	_, err = NewClient(ClientOpts{BaseURL: "http://x"})
	assert.ErrorContains(t, err, "session store is required")
}

func TestLogin_StoresSession(t *testing.T) {
	store := session.NewMemoryStore(session.Session{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, loginPath, r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Identifier)
		assert.Equal(t, "s3cret", req.Password)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-1","user":{"id":42,"username":"alice","vip_level":"VIP2","role":"user"}}`))
	}, store)

	sess, err := c.Login(context.Background(), "  alice ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Credential)
	assert.Equal(t, "42", sess.UserID())
	assert.Equal(t, "VIP2", sess.Profile.VIPLevel)

	stored, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
}

func TestLogin_ValidationNeverSends(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, session.NewMemoryStore(session.Session{}))

	tests := []struct {
		name       string
		identifier string
		password   string
		field      string
	}{
		{"empty identifier", "", "pw", "identifier"},
		{"blank identifier", "   ", "pw", "identifier"},
		{"empty password", "alice", "", "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Login(context.Background(), tt.identifier, tt.password)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "err = %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.False(t, called, "validation failures must not reach the backend")
}

func TestLogin_BackendError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", http.StatusBadRequest, `{"message":"Invalid phone or password"}`, "Invalid phone or password"},
		{"error field", http.StatusConflict, `{"error":"Account locked"}`, "Account locked"},
		{"no body", http.StatusInternalServerError, ``, GenericMessage},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, GenericMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, session.NewMemoryStore(session.Session{}))

			_, err := c.Login(context.Background(), "alice", "pw")
			var aerr *APIError
			require.True(t, errors.As(err, &aerr), "err = %v", err)
			assert.Equal(t, tt.status, aerr.Status)
			assert.Equal(t, tt.wantMsg, DisplayMessage(err))
		})
	}
}

func TestLogin_RejectedCredentialsKeepSession(t *testing.T) {
	prior := session.Session{Credential: "tok-old", Profile: session.UserProfile{ID: "42", Username: "alice"}}
	store := session.NewMemoryStore(prior)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Wrong password"}`))
	}, store)

	_, err := c.Login(context.Background(), "alice", "nope")
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, "Wrong password", DisplayMessage(err))

	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, prior, got)
}

func TestProfile_RefreshesSnapshot(t *testing.T) {
	store := session.NewMemoryStore(session.Session{
		Credential: "tok-1",
		Profile:    session.UserProfile{ID: "42", Username: "alice", VIPLevel: "VIP1"},
	})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, profilePath, r.URL.Path)
		w.Write([]byte(`{"id":"42","username":"alice","vip_level":"VIP3"}`))
	}, store)

	p, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VIP3", p.VIPLevel)

	stored, _ := store.Get()
	assert.Equal(t, "tok-1", stored.Credential)
	assert.Equal(t, "VIP3", stored.Profile.VIPLevel)
}

func TestProfile_UnauthorizedClearsSession(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			store := session.NewMemoryStore(session.Session{
				Credential: "expired",
				Profile:    session.UserProfile{ID: "42"},
			})
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}, store)

			_, err := c.Profile(context.Background())
			assert.ErrorIs(t, err, ErrUnauthorized)
			assert.True(t, IsUnauthorized(err))

			stored, _ := store.Get()
			assert.False(t, stored.Authenticated())
		})
	}
}

func TestProfile_RequiresSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent without a session")
	}, session.NewMemoryStore(session.Session{}))

	_, err := c.Profile(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestLogout(t *testing.T) {
	store := session.NewMemoryStore(session.Session{Credential: "tok", Profile: session.UserProfile{ID: "42"}})
	c, err := NewClient(ClientOpts{BaseURL: "http://unused", Store: store})
	require.NoError(t, err)

	require.NoError(t, c.Logout())
	stored, _ := store.Get()
	assert.Equal(t, session.Session{}, stored)
}

func TestDisplayMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &ValidationError{Field: "password", Message: "Password is required."}, "Password is required."},
		{"unauthorized", ErrUnauthorized, "Your session has expired. Please log in again."},
		{"no session", session.ErrNoSession, "Your session has expired. Please log in again."},
		{"api verbatim", &APIError{Status: 400, Message: "Insufficient balance"}, "Insufficient balance"},
		{"api blank", &APIError{Status: 500, Message: "  "}, GenericMessage},
		{"transport", errors.New("dial tcp: connection refused"), GenericMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayMessage(tt.err))
		})
	}
}
