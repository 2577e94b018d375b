package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrMaxRedirects means the redirect chain did not terminate within the
	// allowed number of hops.
	ErrMaxRedirects = errors.New("max redirection exceeded")
	// ErrMissingLocation marks a redirect response without a usable
	// Location header.
	ErrMissingLocation = errors.New("redirect response missing Location header")
)

const defaultRequestTimeout = 10 * time.Second

// Response is one fully buffered HTTP exchange result.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsRedirect reports whether the response asks the client to follow a new
// location.
func (r *Response) IsRedirect() bool {
	return r.StatusCode == http.StatusFound || r.StatusCode == http.StatusMovedPermanently
}

// Session owns one HTTP client plus its cookie state for a single login or
// relay operation. Sessions are not shared between concurrent logins; each
// user gets an isolated connection and jar.
type Session struct {
	client    *http.Client
	jar       *Jar
	userAgent string
	timeout   time.Duration
}

// NewSession builds a session with a fresh jar. Redirects are never followed
// implicitly; callers that need them use GetWithRedirection so the hop count
// stays bounded. timeout <= 0 falls back to a default per-request bound.
func NewSession(userAgent string, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Session{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:       NewJar(),
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Jar exposes the session's cookie jar.
func (s *Session) Jar() *Jar { return s.jar }

// Get issues one GET without following redirects.
func (s *Session) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	return s.do(ctx, req)
}

// PostForm issues one urlencoded form POST without following redirects.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(ctx, req)
}

// GetWithRedirection follows 301/302 responses up to maxRedirects hops,
// reusing the jar across hops. With maxRedirects zero a redirect response is
// an immediate failure.
func (s *Session) GetWithRedirection(ctx context.Context, rawURL string, maxRedirects int) (*Response, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", rawURL, err)
	}

	for hop := 0; ; hop++ {
		resp, err := s.Get(ctx, current.String())
		if err != nil {
			return nil, err
		}
		if !resp.IsRedirect() {
			return resp, nil
		}
		if hop >= maxRedirects {
			return nil, fmt.Errorf("%w: %d hops from %s", ErrMaxRedirects, maxRedirects, rawURL)
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, ErrMissingLocation
		}
		next, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingLocation, loc)
		}
		current = current.ResolveReference(next)
	}
}

// do sends req with the session identity attached, merges any Set-Cookie
// response headers into the jar, and buffers the whole body.
func (s *Session) do(ctx context.Context, req *http.Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req = req.WithContext(ctx)

	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if cookie, ok := s.jar.HeaderValue(); ok {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	for _, line := range resp.Header.Values("Set-Cookie") {
		s.jar.Append(line)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", req.URL, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Close releases the session's idle connections. The remote end sees a
// normal connection shutdown.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}
