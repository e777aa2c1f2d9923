package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rickgao/realtime-client/internal/channel"
	"github.com/rickgao/realtime-client/internal/jsoncodec"
)

// Authorizer fetches channel credentials over HTTP. It implements
// channel.Authorizer.
type Authorizer struct {
	endpoint   string
	headers    http.Header
	params     url.Values
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// New creates an Authorizer posting to endpoint.
func New(endpoint string, opts ...Option) *Authorizer {
	a := &Authorizer{
		endpoint: endpoint,
		headers:  make(http.Header),
		params:   make(url.Values),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Authorizer) {
		a.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(a *Authorizer) {
		a.maxRetries = max
		a.retryBackoff = backoff
	}
}

// WithHeader adds a header to every request, e.g. a session cookie or token.
func WithHeader(key, value string) Option {
	return func(a *Authorizer) {
		a.headers.Add(key, value)
	}
}

// WithParam adds a form field to every request.
func WithParam(key, value string) Option {
	return func(a *Authorizer) {
		a.params.Add(key, value)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Authorizer) {
		a.httpClient = hc
	}
}

// Authorize requests credentials for channelName on the session socketID.
func (a *Authorizer) Authorize(ctx context.Context, socketID, channelName string) (channel.Credentials, error) {
	form := url.Values{}
	for k, vs := range a.params {
		form[k] = append([]string(nil), vs...)
	}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channelName)

	body, err := a.doWithRetry(ctx, form)
	if err != nil {
		return channel.Credentials{}, err
	}

	var creds channel.Credentials
	if err := jsoncodec.Unmarshal(body, &creds); err != nil {
		return channel.Credentials{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if creds.Auth == "" {
		return channel.Credentials{}, ErrMissingAuth
	}

	a.logger.Debug("channel authorized", "channel", channelName)
	return creds, nil
}
