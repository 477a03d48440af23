// Package aur is a client for the AUR RPC interface (version 5).
//
// Responses are validated field by field: a response that does not match the
// documented shape is never coerced into a fingerprint.
package aur

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/blackwell-systems/aurtrust/internal/trust"
	"github.com/blackwell-systems/aurtrust/internal/upstream"
)

const (
	// DefaultBaseURL is the public AUR RPC endpoint.
	DefaultBaseURL = "https://aur.archlinux.org/rpc/"

	// DefaultRequestTimeout bounds a single RPC request.
	DefaultRequestTimeout = 10 * time.Second

	// maxBodySize caps how much of a response is read.
	maxBodySize = 4 << 20
)

// Package is the subset of AUR package metadata aurtrust reads.
type Package struct {
	Name          string
	Version       string
	LastModified  int64
	Maintainer    string // empty for orphaned packages
	CoMaintainers []string
}

// Maintainers returns the maintainer followed by the co-maintainers.
func (p Package) Maintainers() []string {
	out := make([]string, 0, len(p.CoMaintainers)+1)
	if p.Maintainer != "" {
		out = append(out, p.Maintainer)
	}
	return append(out, p.CoMaintainers...)
}

// Fingerprint returns the version and content marker of the package.
func (p Package) Fingerprint() (trust.Fingerprint, error) {
	return trust.NewFingerprint(p.Version, strconv.FormatInt(p.LastModified, 10))
}

// Client queries the AUR RPC interface. It implements upstream.Source.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	logger    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another RPC endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger for request events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRootCAs verifies the server against pool only, ignoring the system
// roots.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Client) {
		t, ok := c.http.Transport.(*http.Transport)
		if !ok {
			return
		}
		if t.TLSClientConfig == nil {
			t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS13}
		}
		t.TLSClientConfig.RootCAs = pool
	}
}

// LoadRootCAs reads PEM certificates from path into a new pool.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no PEM certificates in %s", path)
	}
	return pool, nil
}

// NewClient returns a client for the public AUR. The AUR only serves modern
// TLS, so the default transport refuses anything below TLS 1.3.
func NewClient(opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS13}

	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: "aurtrust",
		http: &http.Client{
			Timeout:   DefaultRequestTimeout,
			Transport: transport,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Info implements upstream.Source. It returns nil, nil when the package does
// not exist in the AUR.
func (c *Client) Info(ctx context.Context, name string) (*trust.Fingerprint, error) {
	pkg, err := c.Lookup(ctx, name)
	if err != nil || pkg == nil {
		return nil, err
	}

	fp, err := pkg.Fingerprint()
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

// Metadata implements upstream.MetadataSource.
func (c *Client) Metadata(ctx context.Context, name string) (*upstream.Metadata, error) {
	pkg, err := c.Lookup(ctx, name)
	if err != nil || pkg == nil {
		return nil, err
	}

	fp, err := pkg.Fingerprint()
	if err != nil {
		return nil, err
	}
	return &upstream.Metadata{Fingerprint: fp, Maintainers: pkg.Maintainers()}, nil
}

// Lookup fetches the metadata of a single package.
func (c *Client) Lookup(ctx context.Context, name string) (*Package, error) {
	reqURL, err := c.infoURL(name)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", reqURL).Msg("GET")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Transport failures and per-request timeouts are worth retrying.
		return nil, upstream.Transient(fmt.Errorf("request %s: %w", name, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case upstream.IsTransientStatus(resp.StatusCode):
		return nil, upstream.TransientStatus(resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, upstream.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	return c.parseInfo(name, body)
}

func (c *Client) infoURL(name string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid RPC URL %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("v", "5")
	q.Set("type", "info")
	q.Add("arg[]", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseInfo validates an info response for a single requested name.
func (c *Client) parseInfo(name string, body []byte) (*Package, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("response is not a JSON object")
	}

	if t := root.Get("type"); t.String() == "error" {
		return nil, fmt.Errorf("AUR error: %s", root.Get("error").String())
	}

	count, err := integer(root.Get("resultcount"))
	if err != nil {
		return nil, fmt.Errorf("resultcount: %w", err)
	}
	results := root.Get("results")
	if !results.IsArray() {
		return nil, fmt.Errorf("results is not an array")
	}
	items := results.Array()

	if count != int64(len(items)) {
		c.logger.Warn().
			Str("package", name).
			Int64("resultcount", count).
			Int("results", len(items)).
			Msg("inconsistent AUR info response")
	}

	switch len(items) {
	case 0:
		if count != 0 {
			// An empty page that claims results cannot prove the package is gone.
			return nil, fmt.Errorf("inconsistent response: resultcount %d, no results", count)
		}
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("expected one result for %s, got %d", name, len(items))
	}

	item := items[0]
	if !item.IsObject() {
		return nil, fmt.Errorf("result is not a JSON object")
	}

	got := item.Get("Name")
	if got.Type != gjson.String {
		return nil, fmt.Errorf("result has no Name")
	}
	if got.Str != name {
		return nil, fmt.Errorf("asked for %s, AUR answered for %s", name, got.Str)
	}

	version := item.Get("Version")
	if version.Type != gjson.String {
		return nil, &trust.MalformedMetadataError{Field: "Version", Reason: reasonFor(version, "a string")}
	}

	lastModified, err := integer(item.Get("LastModified"))
	if err != nil {
		return nil, &trust.MalformedMetadataError{Field: "LastModified", Reason: err.Error()}
	}

	pkg := &Package{
		Name:         got.Str,
		Version:      version.Str,
		LastModified: lastModified,
	}
	// Orphaned packages have a null maintainer.
	if m := item.Get("Maintainer"); m.Type == gjson.String {
		pkg.Maintainer = m.Str
	}
	if co := item.Get("CoMaintainers"); co.Exists() && co.Type != gjson.Null {
		if !co.IsArray() {
			return nil, &trust.MalformedMetadataError{Field: "CoMaintainers", Reason: reasonFor(co, "an array")}
		}
		for _, m := range co.Array() {
			if m.Type != gjson.String {
				return nil, &trust.MalformedMetadataError{Field: "CoMaintainers", Reason: reasonFor(m, "a string")}
			}
			pkg.CoMaintainers = append(pkg.CoMaintainers, m.Str)
		}
	}

	if _, err := pkg.Fingerprint(); err != nil {
		return nil, err
	}
	return pkg, nil
}

// integer reads a non-negative JSON integer.
func integer(r gjson.Result) (int64, error) {
	if r.Type != gjson.Number {
		return 0, fmt.Errorf("%s", reasonFor(r, "an integer"))
	}
	n, err := strconv.ParseInt(r.Raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("is %s, want a non-negative integer", r.Raw)
	}
	return n, nil
}

func reasonFor(r gjson.Result, want string) string {
	if !r.Exists() {
		return "is missing"
	}
	return fmt.Sprintf("is %s, want %s", r.Type, want)
}
