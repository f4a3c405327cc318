package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/realtime-relay/backend/internal/model/transcript"
	conversationsvc "github.com/zhouzirui/realtime-relay/backend/internal/service/conversation"
)

func newTestRouter() (http.Handler, *conversationsvc.Service) {
	store := conversationsvc.NewService()
	return NewRouter(Deps{
		Conversations:  store,
		AllowedOrigins: []string{"http://localhost:8000"},
		Logger:         zerolog.Nop(),
	}), store
}

func serve(r http.Handler, method, path, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter()

	resp := serve(r, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok","relay":false}`, resp.Body.String())
}

func TestMetricsExposed(t *testing.T) {
	r, _ := newTestRouter()

	resp := serve(r, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "relay_active_sessions")
}

func TestConversationRoutesAndLegacyAlias(t *testing.T) {
	r, store := newTestRouter()
	require.NoError(t, store.Append(context.Background(), "abc", []transcript.Utterance{
		{Sender: transcript.SpeakerUser, Message: "hi"},
	}))

	for _, path := range []string{"/conversations/abc", "/api/conversations/abc"} {
		resp := serve(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, resp.Code, path)
		assert.Contains(t, resp.Body.String(), `"id":"abc"`)
	}

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/conversations/nope", "").Code)
}

func TestRelayRoutesUnavailableWithoutCredential(t *testing.T) {
	r, _ := newTestRouter()

	for _, path := range []string{"/sessions", "/realtime", "/api/ephemeral_sessions", "/api/realtime"} {
		resp := serve(r, http.MethodPost, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code, path)
	}
}

func TestCORSAppliesBeforeRouting(t *testing.T) {
	r, _ := newTestRouter()

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/conversations/abc", "https://evil.example").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodOptions, "/realtime", "http://localhost:8000").Code)
}
