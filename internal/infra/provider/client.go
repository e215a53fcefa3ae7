// Package provider implements the outbound HTTP clients for the upstream
// survey providers. Each client maps its provider's native JSON onto
// entity.RawOffer; everything else in the payload is ignored.
package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/handler/http/requestid"
	"survey-offers/internal/resilience/retry"
)

// maxResponseBytes bounds provider response bodies.
const maxResponseBytes = 2 << 20

// ErrMalformedResponse marks a provider payload that could not be mapped.
// It is transient for breaker and retry purposes.
var ErrMalformedResponse = errors.New("malformed provider response")

// Client is the capability every provider exposes to the engine.
type Client interface {
	ID() entity.ProviderID
	Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error)
	Ping(ctx context.Context) error
}

// Config holds the settings for one provider client.
type Config struct {
	ID         entity.ProviderID
	BaseURL    string
	APIKey     string
	AppID      string
	SecureHash string
	HealthPath string
	Timeout    time.Duration

	// RatePerSecond and Burst configure the outbound token bucket. Zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// Validate checks settings that would make every call fail.
func (c Config) Validate() error {
	if !c.ID.IsKnown() {
		return fmt.Errorf("%w: %q", entity.ErrUnknownProvider, c.ID)
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil || !strings.HasPrefix(c.BaseURL, "http") {
		return fmt.Errorf("%w: provider %s base url %q", entity.ErrInvalidConfig, c.ID, c.BaseURL)
	}
	if c.Timeout < 0 || c.RatePerSecond < 0 || c.Burst < 0 {
		return fmt.Errorf("%w: provider %s has negative limits", entity.ErrInvalidConfig, c.ID)
	}
	return nil
}

// baseClient is the HTTP plumbing shared by every provider client.
type baseClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newBaseClient(cfg Config) (*baseClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	transport.MaxIdleConnsPerHost = 10

	b := &baseClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return b, nil
}

func (b *baseClient) ID() entity.ProviderID { return b.cfg.ID }

// get performs a GET and returns the body of a 2xx response. Non-2xx
// responses become *retry.HTTPError; bodies that are not JSON become
// ErrMalformedResponse.
func (b *baseClient) get(ctx context.Context, path string, query url.Values, header http.Header) ([]byte, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit wait: %w", b.cfg.ID, err)
		}
	}

	endpoint := strings.TrimRight(b.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s request: %v", entity.ErrInvalidConfig, b.cfg.ID, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "survey-offers/1.0")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", b.cfg.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", b.cfg.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%s: %s", b.cfg.ID, msg)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", ErrMalformedResponse, b.cfg.ID)
	}
	return body, nil
}

// Ping checks the provider's health endpoint.
func (b *baseClient) Ping(ctx context.Context) error {
	if b.limiter != nil {
		// Probes never queue behind user traffic.
		if !b.limiter.Allow() {
			return nil
		}
	}
	endpoint := strings.TrimRight(b.cfg.BaseURL, "/") + b.cfg.HealthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build %s probe: %v", entity.ErrInvalidConfig, b.cfg.ID, err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s probe: %w", b.cfg.ID, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &retry.HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%s probe", b.cfg.ID)}
	}
	return nil
}

// profileQuery adds the demographic fields a provider accepts under its own parameter names.
func profileQuery(q url.Values, profile entity.DemographicProfile, names map[string]string, now time.Time) {
	set := func(field, value string) {
		if name, ok := names[field]; ok && value != "" {
			q.Set(name, value)
		}
	}
	if age, ok := profile.AgeAt(now); ok {
		set("age", strconv.Itoa(age))
	}
	set("gender", strings.ToLower(profile.Gender))
	set("country", profile.Country())
	set("zip", profile.ZipCode)
}

// mapOffers applies fn to every element of the array at path. A missing
// array is an empty result; a non-array value is malformed.
func mapOffers(body []byte, path string, provider entity.ProviderID, fn func(gjson.Result) (entity.RawOffer, bool)) ([]entity.RawOffer, error) {
	list := gjson.GetBytes(body, path)
	if !list.Exists() {
		return []entity.RawOffer{}, nil
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: %s field %q is not an array", ErrMalformedResponse, provider, path)
	}
	out := make([]entity.RawOffer, 0, len(list.Array()))
	list.ForEach(func(_, item gjson.Result) bool {
		if o, ok := fn(item); ok {
			o.Provider = provider
			out = append(out, o)
		}
		return true
	})
	return out, nil
}
