package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	realtimemodel "github.com/zhouzirui/realtime-relay/backend/internal/model/realtime"
)

func TestProviderCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/realtime/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req realtimemodel.SessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-realtime-preview", req.Model)
		assert.Equal(t, "alloy", req.Voice)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"ek_123"}}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL+"/v1", "sk-test", 5*time.Second, zerolog.Nop())
	payload, err := p.CreateSession(context.Background(), realtimemodel.SessionRequest{
		Model: "gpt-4o-realtime-preview",
		Voice: "alloy",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", payload.ContentType)
	assert.JSONEq(t, `{"id":"sess_1","client_secret":{"value":"ek_123"}}`, string(payload.Body))
}

func TestProviderCreateSessionPassesErrorThrough(t *testing.T) {
	body := `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "sk-bad", 5*time.Second, zerolog.Nop())
	_, err := p.CreateSession(context.Background(), realtimemodel.SessionRequest{Model: "m"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, "application/json", perr.ContentType)
	assert.Equal(t, body, string(perr.Body))
	assert.Equal(t, opCreateSession, perr.Operation)
}

func TestProviderExchangeSDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime", r.URL.Path)
		assert.Equal(t, "gpt 4o&x", r.URL.Query().Get("model"))
		assert.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		offer, _ := io.ReadAll(r.Body)
		assert.Equal(t, "v=0\r\noffer", string(offer))

		w.Header().Set("Content-Type", "application/sdp")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("v=0\r\nanswer"))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "sk-test", 5*time.Second, zerolog.Nop())
	answer, err := p.ExchangeSDP(context.Background(), "gpt 4o&x", "v=0\r\noffer")
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\nanswer", answer)
}

func TestProviderExchangeSDPRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid offer", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "sk-test", 5*time.Second, zerolog.Nop())
	_, err := p.ExchangeSDP(context.Background(), "m", "garbage")

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Contains(t, string(perr.Body), "invalid offer")
}

func TestProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewProvider(url, "sk-test", time.Second, zerolog.Nop())
	_, err := p.ExchangeSDP(context.Background(), "m", "offer")
	assert.ErrorIs(t, err, ErrProviderUnreachable)
}

func TestProviderHonoursContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := NewProvider(srv.URL, "sk-test", 5*time.Second, zerolog.Nop())
	_, err := p.CreateSession(ctx, realtimemodel.SessionRequest{Model: "m"})
	assert.ErrorIs(t, err, ErrProviderUnreachable)
}

func TestWithHTTPClientOverridesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: time.Minute}
	p := NewProvider(srv.URL, "sk-test", time.Second, zerolog.Nop(), WithHTTPClient(client))
	assert.Same(t, client, p.client.GetClient())

	_, err := p.CreateSession(context.Background(), realtimemodel.SessionRequest{Model: "m"})
	require.NoError(t, err)
}

func TestProviderErrorKeepsNonJSONBodyVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "sk-test", 5*time.Second, zerolog.Nop())
	_, err := p.CreateSession(context.Background(), realtimemodel.SessionRequest{Model: "m"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Equal(t, "text/plain", perr.ContentType)
	assert.Equal(t, []byte("slow down"), perr.Body)
}
