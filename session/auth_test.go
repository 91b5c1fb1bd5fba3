package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/praktikumlab/go-praktikum/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	mux := http.NewServeMux()
	token := func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.RequestURI())
		if r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := tokenResponse{
			AccessToken:  "access-" + r.URL.Query().Get("grant_type"),
			RefreshToken: "refresh-next",
			ExpiresAt:    time.Now().Add(time.Hour).Unix(),
			User:         &User{ID: "u1", Email: "bidan@akademi.ac.id", Role: "mahasiswa"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
	mux.HandleFunc("/token", token)
	mux.HandleFunc("/signup", token)
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.RequestURI())
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.RequestURI())
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.NotEmpty(t, payload["password"])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestHTTPAuthClientFlow(t *testing.T) {
	srv, requests := authTestServer(t)
	client := NewHTTPAuthClient(srv.URL, "anon-key", logger.NewTestLogger())
	ctx := context.Background()

	result, err := client.SignIn(ctx, Credentials{Email: "bidan@akademi.ac.id", Password: "rahasia"})
	require.NoError(t, err)
	assert.Equal(t, "access-password", result.Session.AccessToken)
	assert.Equal(t, "mahasiswa", result.User.Role)
	assert.True(t, result.Session.ExpiresAt.After(time.Now()))

	result, err = client.RefreshToken(ctx, "refresh-next")
	require.NoError(t, err)
	assert.Equal(t, "access-refresh_token", result.Session.AccessToken)

	require.NoError(t, client.UpdatePassword(ctx, "rahasia-baru"))
	require.NoError(t, client.SignOut(ctx, ScopeGlobal))

	assert.Equal(t, []string{
		"POST /token?grant_type=password",
		"POST /token?grant_type=refresh_token",
		"PUT /user",
		"POST /logout?scope=global",
	}, *requests)
}

func TestHTTPAuthClientErrorCarriesRequestContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	t.Cleanup(srv.Close)
	client := NewHTTPAuthClient(srv.URL, "anon-key", logger.NewTestLogger())

	_, err := client.SignIn(context.Background(), Credentials{Email: "x@y.z", Password: "nope"})
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusBadRequest, authErr.Status)
	assert.Equal(t, http.MethodPost, authErr.Method)
	assert.Contains(t, authErr.Body, "invalid_grant")
}
