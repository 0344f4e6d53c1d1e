package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recshare/internal/config"
	"github.com/sakif/recshare/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		Port:             8080,
		DBPath:           ":memory:",
		JWTSecret:        "server-test-secret-0123456789",
		TokenTTL:         time.Minute,
		LogLevel:         "error",
		CORSOrigins:      []string{"http://localhost:3000"},
		InvitationPrice:  50,
		GiftPrice:        20,
		LikeReward:       1,
		AuthorLikeReward: 5,
	}
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.db.Close() })
	return s
}

func (s *Server) bearer(t *testing.T, actor model.Actor) string {
	t.Helper()
	token, err := s.tokens.Generate(actor)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/market", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPresetsSeededAndCannedBuy(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	user := &model.User{Username: "alice", Role: model.RoleUser, Balance: 60}
	require.NoError(t, s.db.Users().Create(ctx, user))
	authz := s.bearer(t, model.Actor{UserID: user.ID, Role: user.Role})

	req := httptest.NewRequest(http.MethodGet, "/api/market?variant=consumable", nil)
	req.Header.Set("Authorization", authz)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var page struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
	assert.Equal(t, 2, page.Total)

	body := bytes.NewBufferString(`{"kind":"invitation"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/users/"+user.ID+"/purchases/canned", body)
	req.Header.Set("Authorization", authz)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, int64(10), res.Balance)

	req = httptest.NewRequest(http.MethodPost, "/api/invitations", nil)
	req.Header.Set("Authorization", authz)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `recshare_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/market", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
