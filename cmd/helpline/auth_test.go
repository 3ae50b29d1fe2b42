package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haimi-h/shopify-clone-sub000/internal/session"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Identifier string `json:"identifier"`
			Password   string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Identifier != "alice" || req.Password != "s3cret" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-1","user":{"id":7,"username":"alice","vip_level":"VIP1"}}`))
	})
	mux.HandleFunc("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"username":"alice","vip_level":"VIP3","referral_code":"ALC7"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	backend := fakeBackend(t)
	cfgPath, sessPath := writeConfig(t, "api:\n  base_url: "+backend.URL+"\n")

	out, err := runCmd(t, "s3cret\n", "login", "-c", cfgPath, "--user", "alice")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Logged in as alice (user 7)")

	store, err := session.NewFileStore(sessPath)
	require.NoError(t, err)
	sess, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Credential)
	assert.Equal(t, "7", sess.UserID())

	out, err = runCmd(t, "", "whoami", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "User:     alice")
	assert.Contains(t, out, "VIP:      VIP1")

	out, err = runCmd(t, "", "whoami", "-c", cfgPath, "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "VIP:      VIP3")
	assert.Contains(t, out, "Referral: ALC7")

	out, err = runCmd(t, "", "logout", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, err = runCmd(t, "", "whoami", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestLogin_PromptsForIdentifier(t *testing.T) {
	backend := fakeBackend(t)
	cfgPath, _ := writeConfig(t, "api:\n  base_url: "+backend.URL+"\n")

	out, err := runCmd(t, "alice\ns3cret\n", "login", "-c", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Phone or username: ")
	assert.Contains(t, out, "Logged in as alice")
}

func TestLogin_BadCredentials(t *testing.T) {
	backend := fakeBackend(t)
	cfgPath, sessPath := writeConfig(t, "api:\n  base_url: "+backend.URL+"\n")

	out, err := runCmd(t, "wrong\n", "login", "-c", cfgPath, "--user", "alice", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.NotContains(t, out, "Password: ")

	store, err := session.NewFileStore(sessPath)
	require.NoError(t, err)
	sess, err := store.Get()
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}

func TestLogin_NoBaseURL(t *testing.T) {
	t.Setenv("HELPLINE_API_URL", "")
	cfgPath, _ := writeConfig(t, "")

	_, err := runCmd(t, "s3cret\n", "login", "-c", cfgPath, "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API URL configured")
}

func TestWhoami_RefreshRejectedClearsSession(t *testing.T) {
	backend := fakeBackend(t)
	cfgPath, sessPath := writeConfig(t, "api:\n  base_url: "+backend.URL+"\n")

	store, err := session.NewFileStore(sessPath)
	require.NoError(t, err)
	require.NoError(t, store.Set(session.Session{
		Credential: "expired",
		Profile:    session.UserProfile{ID: "7", Username: "alice"},
	}))

	_, err = runCmd(t, "", "whoami", "-c", cfgPath, "--refresh")
	require.Error(t, err)

	sess, err := store.Get()
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}
