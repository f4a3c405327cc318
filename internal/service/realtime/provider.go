package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/realtime-relay/backend/internal/metrics"
	realtimemodel "github.com/zhouzirui/realtime-relay/backend/internal/model/realtime"
)

const (
	opCreateSession = "create_session"
	opExchangeSDP   = "exchange_sdp"
)

// Payload is a provider response body relayed without interpretation.
type Payload struct {
	ContentType string
	Body        []byte
}

// ProviderClient is the provider-facing half of negotiation.
type ProviderClient interface {
	CreateSession(ctx context.Context, req realtimemodel.SessionRequest) (*Payload, error)
	ExchangeSDP(ctx context.Context, model, offerSDP string) (string, error)
}

// Provider talks to the OpenAI Realtime HTTP endpoints with the server-held secret.
type Provider struct {
	client *resty.Client
	log    zerolog.Logger
}

type providerOptions struct {
	httpClient *http.Client
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerOptions)

// WithHTTPClient replaces the underlying HTTP client, including its timeout.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(o *providerOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// NewProvider builds a resty-backed provider client; timeout bounds every
// outbound call unless a custom HTTP client is supplied.
func NewProvider(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger, opts ...ProviderOption) *Provider {
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}

	log = log.With().Str("component", "provider").Logger()

	var client *resty.Client
	if o.httpClient != nil {
		client = resty.NewWithClient(o.httpClient)
	} else {
		client = resty.New()
		if timeout > 0 {
			client.SetTimeout(timeout)
		}
	}
	client.
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetLogger(restyLogger{log: log})

	return &Provider{client: client, log: log}
}

// CreateSession asks the provider for an ephemeral session credential.
func (p *Provider) CreateSession(ctx context.Context, req realtimemodel.SessionRequest) (*Payload, error) {
	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req)

	payload, err := p.do(request, http.MethodPost, "/realtime/sessions", opCreateSession)
	if err != nil {
		return nil, err
	}
	p.log.Debug().Str("model", req.Model).Str("voice", req.Voice).Msg("ephemeral session issued")
	return payload, nil
}

// ExchangeSDP relays an SDP offer and returns the provider's answer SDP.
func (p *Provider) ExchangeSDP(ctx context.Context, model, offerSDP string) (string, error) {
	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/sdp").
		SetQueryParam("model", model).
		SetBody(offerSDP)

	payload, err := p.do(request, http.MethodPost, "/realtime", opExchangeSDP)
	if err != nil {
		return "", err
	}
	return string(payload.Body), nil
}

func (p *Provider) do(request *resty.Request, method, path, operation string) (*Payload, error) {
	started := time.Now()
	resp, err := request.Execute(method, path)
	metrics.ProviderRequestDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.RecordProviderError(operation, 0)
		p.log.Error().Err(err).Str("operation", operation).Msg("provider request failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderUnreachable, operation, err)
	}

	body := resp.Body()
	contentType := resp.Header().Get("Content-Type")
	if !resp.IsSuccess() {
		metrics.RecordProviderError(operation, resp.StatusCode())
		p.log.Warn().
			Str("operation", operation).
			Int("status", resp.StatusCode()).
			Str("body", truncate(string(body), 500)).
			Msg("provider returned error")
		return nil, &ProviderError{
			Operation:   operation,
			StatusCode:  resp.StatusCode(),
			ContentType: contentType,
			Body:        body,
		}
	}

	return &Payload{ContentType: contentType, Body: body}, nil
}

// restyLogger routes resty's internal messages through zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug().Msgf(format, v...)
}
