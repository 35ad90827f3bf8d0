package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Kind tags what a Result carries.
type Kind string

const (
	KindHTML Kind = "html"
	KindJSON Kind = "json"
)

// Request represents a scrape request handed to a provider.
type Request struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	// Actions run after page load. Providers that support them return
	// the post-action HTML in Result.ActionHTML.
	Actions []Action
}

// Result is a tagged union: HTML providers fill HTML (and ActionHTML
// when actions ran); structured providers fill JSON and ScraperID.
type Result struct {
	Provider   string
	Kind       Kind
	Duration   time.Duration
	HTML       string
	ActionHTML string
	JSON       json.RawMessage
	ScraperID  string
}

// Scraper defines the interface for scraping providers. Implementations
// never retry; retries are the caller's decision.
type Scraper interface {
	Name() string
	// Configured reports missing credentials without doing any I/O.
	Configured() error
	Scrape(ctx context.Context, req Request) (*Result, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrKindConfig    ErrorKind = "config"
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindStatus    ErrorKind = "status"
	ErrKindBody      ErrorKind = "body"
	ErrKindBlocked   ErrorKind = "blocked"
	ErrKindTransport ErrorKind = "transport"
)

// TimeoutMessage is shown to users whenever a provider call times out.
const TimeoutMessage = "Request timeout: the website may be slow or unresponsive"

// ScrapeError is the single error type every provider failure is
// normalized into. Message is short and safe to show to end users.
type ScrapeError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ScrapeError) Error() string {
	return e.Message
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.Kind == ErrKindTimeout
}

func configError(provider, what string) *ScrapeError {
	return &ScrapeError{
		Provider: provider,
		Kind:     ErrKindConfig,
		Message:  fmt.Sprintf("Scraping provider %s is not configured: missing %s", provider, what),
	}
}

// transportError classifies a failed round trip as timeout or transport.
func transportError(provider string, err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ScrapeError{Provider: provider, Kind: ErrKindTimeout, Message: TimeoutMessage, Err: err}
	}
	return &ScrapeError{
		Provider: provider,
		Kind:     ErrKindTransport,
		Message:  "Could not reach the scraping service, please try again",
		Err:      err,
	}
}

func statusError(provider string, code int) *ScrapeError {
	msg := fmt.Sprintf("The scraping service returned an error (status %d)", code)
	kind := ErrKindStatus
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		kind = ErrKindTimeout
		msg = TimeoutMessage
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		msg = "The scraping service rejected our credentials"
	case code == http.StatusNotFound:
		msg = "The listing page could not be found (404)"
	case code == http.StatusTooManyRequests:
		msg = "The scraping service is rate limiting requests, please try again in a minute"
	}
	return &ScrapeError{Provider: provider, Kind: kind, StatusCode: code, Message: msg}
}

func bodyError(provider, msg string, err error) *ScrapeError {
	return &ScrapeError{Provider: provider, Kind: ErrKindBody, Message: msg, Err: err}
}

// maxBodyBytes caps provider responses; listing pages with inline
// hydration state can be large but not unbounded.
const maxBodyBytes = 32 << 20

// doRequest executes req, maps failures to ScrapeError and returns the
// body of a 2xx response.
func doRequest(client *http.Client, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(provider, resp.StatusCode)
	}
	return body, nil
}

// withTimeout derives a context bounded by req.Timeout when it is set.
func withTimeout(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		return context.WithTimeout(ctx, req.Timeout)
	}
	return context.WithCancel(ctx)
}
