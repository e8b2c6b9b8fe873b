// Package origin implements the HTTP client for the upstream application
// server.
//
// This file provides transport setup with DNS caching, buffered snapshot
// fetches for cacheable responses, and raw streaming passthrough.
package origin

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/dnscache"

	airlock "github.com/reodash/airlock/internal"
)

// Options configures the origin client.
type Options struct {
	BaseURL string
	Timeout time.Duration // bounds snapshot fetches and time-to-first-byte
	Auth    *AuthOptions  // optional; unauthenticated when nil
}

// Client talks to the single configured origin server.
type Client struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
}

// New builds a Client. The resolver, when non-nil, caches DNS lookups;
// schedule resolver.Refresh alongside to keep entries current.
func New(ctx context.Context, opts Options, resolver *dnscache.Resolver) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("origin: base_url is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("origin: parse base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("origin: base_url scheme %q is not http or https", base.Scheme)
	}

	t := NewTransport(resolver, base.Scheme == "https")
	// A hung origin must fail fast so strategies can fall back; once headers
	// arrive the body may stream for as long as it needs.
	t.ResponseHeaderTimeout = opts.Timeout

	var rt http.RoundTripper = t
	if opts.Auth != nil {
		rt = NewOAuthTransport(ctx, rt, opts.Auth)
	}

	return &Client{
		base:    base,
		client:  &http.Client{Transport: rt},
		timeout: opts.Timeout,
	}, nil
}

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching. Set forceHTTP2 to true for remote HTTPS origins,
// false for local HTTP/1.1 servers.
func NewTransport(resolver *dnscache.Resolver, forceHTTP2 bool) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   forceHTTP2,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// hopByHop headers that must not be forwarded between client and origin.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// target builds the full origin URL for a request URI (path plus query).
func (c *Client) target(requestURI string) string {
	return strings.TrimSuffix(c.base.String(), "/") + requestURI
}

// Do issues a request against the origin carrying the caller's headers and
// returns the raw response for streaming. A transport-level failure maps to
// airlock.ErrOriginUnreachable; a response with an error status does not.
// The caller owns resp.Body.
func (c *Client) Do(ctx context.Context, method, requestURI string, hdr http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.target(requestURI), nil)
	if err != nil {
		return nil, fmt.Errorf("origin: create request: %w", err)
	}
	for key, vals := range hdr {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		req.Header[key] = vals
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("origin: %w: %v", airlock.ErrOriginUnreachable, err)
	}
	return resp, nil
}

// Snapshot fetches a path with a clean GET and buffers the full response.
// Used for precache population, asset fills, and warmup. The fetch asks for
// an identity encoding so the stored body can be replayed to any client.
func (c *Client) Snapshot(ctx context.Context, requestURI string) (*airlock.StoredResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target(requestURI), nil)
	if err != nil {
		return nil, fmt.Errorf("origin: create request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("origin: %w: %v", airlock.ErrOriginUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("origin: read body: %w", err)
	}

	header := resp.Header.Clone()
	for key := range hopByHopHeaders {
		header.Del(key)
	}
	// Replays compute their own framing.
	header.Del("Content-Length")

	return &airlock.StoredResponse{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

// Forward proxies a raw HTTP request to the origin and streams the response
// back, with flush-on-read for streaming content types. Bodies are not
// buffered or size-capped: passthrough traffic includes full recordings.
// On a pre-stream failure Forward writes a 502 itself and returns the error
// for logging.
func (c *Client) Forward(w http.ResponseWriter, r *http.Request) error {
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, c.target(r.URL.RequestURI()), r.Body)
	if err != nil {
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return fmt.Errorf("origin: create request: %w", err)
	}
	for key, vals := range r.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		outReq.Header[key] = vals
	}

	resp, err := c.client.Do(outReq)
	if err != nil {
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return fmt.Errorf("origin: %w: %v", airlock.ErrOriginUnreachable, err)
	}
	defer resp.Body.Close()

	return WriteResponse(w, resp)
}

// WriteResponse copies resp to w: headers minus hop-by-hop, then the status,
// then the body with flush-on-read for streaming content types. Values already
// set on w's header survive. The caller keeps ownership of resp.Body.
func WriteResponse(w http.ResponseWriter, resp *http.Response) error {
	for key, vals := range resp.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	ct := resp.Header.Get("Content-Type")
	needsFlush := canFlush && (strings.Contains(ct, "text/event-stream") ||
		strings.Contains(ct, "application/x-ndjson") ||
		strings.Contains(ct, "application/stream+json") ||
		strings.Contains(ct, "application/vnd.apple.mpegurl") ||
		strings.Contains(ct, "video/mp2t"))

	if needsFlush {
		buf := make([]byte, 32*1024)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				if _, writeErr := w.Write(buf[:n]); writeErr != nil {
					return fmt.Errorf("origin: write response: %w", writeErr)
				}
				flusher.Flush()
			}
			if readErr != nil {
				if readErr == io.EOF {
					return nil
				}
				return fmt.Errorf("origin: read response: %w", readErr)
			}
		}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("origin: copy response: %w", err)
	}
	return nil
}
