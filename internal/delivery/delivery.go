// Package delivery posts computation payloads to the configured endpoint with
// a freshly minted identity token per attempt.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/prime-worker/internal/encoder"
	"github.com/example/prime-worker/internal/models"
)

// Sentinel errors for the credential acquisition steps.
var (
	// ErrCredentialUnavailable indicates no ambient credential is configured
	// for the process.
	ErrCredentialUnavailable = errors.New("delivery: credential unavailable")
	// ErrUnsupportedCredential indicates the ambient credential cannot mint
	// identity tokens.
	ErrUnsupportedCredential = errors.New("delivery: credential cannot mint identity tokens")
)

const (
	defaultTimeout    = 30 * time.Second
	maxDrainBodyBytes = 4 * 1024
)

// TokenProvider mints a bearer identity token scoped to the given audience.
// Each call is independent; implementations must not cache tokens.
type TokenProvider interface {
	IdentityToken(ctx context.Context, audience string) (string, error)
}

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises deliverer behaviour.
type Option func(*Deliverer)

// WithHTTPClient overrides the HTTP client used for the POST.
func WithHTTPClient(client HTTPClient) Option {
	return func(d *Deliverer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithDiagnosticWriter overrides where the payload is echoed before delivery.
func WithDiagnosticWriter(w io.Writer) Option {
	return func(d *Deliverer) {
		if w != nil {
			d.diag = w
		}
	}
}

// Deliverer performs authenticated payload delivery to a fixed endpoint URL.
type Deliverer struct {
	logger     zerolog.Logger
	url        string
	audience   string
	tokens     TokenProvider
	httpClient HTTPClient
	enc        encoder.Encoder
	diag       io.Writer
}

// New constructs a Deliverer for the supplied endpoint and audience.
func New(url, audience string, tokens TokenProvider, logger zerolog.Logger, opts ...Option) (*Deliverer, error) {
	if url == "" {
		return nil, errors.New("delivery: endpoint url is required")
	}
	if audience == "" {
		return nil, errors.New("delivery: token audience is required")
	}
	if tokens == nil {
		return nil, errors.New("delivery: token provider dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	d := &Deliverer{
		logger:     logger,
		url:        url,
		audience:   audience,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		diag:       os.Stdout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Deliver echoes the payload to the diagnostic writer, mints a fresh identity
// token and POSTs the payload to the endpoint. Any transport failure or
// non-2xx response is an error; response bodies are never inspected.
func (d *Deliverer) Deliver(ctx context.Context, payload models.Payload) error {
	body, err := d.enc.Marshal(payload)
	if err != nil {
		return err
	}

	// Diagnostic copy goes out first, independent of delivery outcome.
	if pretty, perr := d.enc.MarshalIndent(payload); perr == nil {
		fmt.Fprintln(d.diag, string(pretty))
	}

	token, err := d.tokens.IdentityToken(ctx, d.audience)
	if err != nil {
		return fmt.Errorf("delivery: acquire identity token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("delivery: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: http do: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBodyBytes))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("delivery: endpoint returned http %d", resp.StatusCode)
	}

	d.logger.Debug().
		Int("status", resp.StatusCode).
		Int("primes", len(payload.Answer)).
		Int64("time_taken_ms", payload.TimeTaken).
		Msg("payload delivered")
	return nil
}
