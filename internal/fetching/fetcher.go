package fetching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	defaultUserAgent = "Mozilla/5.0"
	defaultTimeout   = 30 * time.Second
	defaultMaxBytes  = 25 << 20
)

// Source is a downloaded document, ready to be rasterized
type Source struct {
	URL      string
	Kind     Kind
	MIMEType string
	Data     []byte
}

// ObjectReader reads an object from cloud storage, returning its bytes and
// stored content type. Implementations return *Error for missing objects
// and objects over limit bytes.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string, limit int64) ([]byte, string, error)
}

// Options configures an HTTPFetcher
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	Client    *http.Client
	// AllowPrivateHosts lets the default client connect to loopback,
	// private and link-local addresses
	AllowPrivateHosts bool
	// Objects serves gs:// URLs; nil disables them
	Objects ObjectReader
}

// HTTPFetcher downloads documents over HTTP(S), and from Cloud Storage when
// an ObjectReader is configured
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBytes  int64
	objects   ObjectReader
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with defaults
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Client == nil {
		opts.Client = newClient(opts.AllowPrivateHosts)
	}
	return &HTTPFetcher{
		client:    opts.Client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		objects:   opts.Objects,
	}
}

// Fetch downloads the document at rawURL with a single request and resolves
// its kind. Every failure is returned as *Error.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Source, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Kind: InvalidURL, URL: rawURL, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &Error{Kind: InvalidURL, URL: rawURL, Err: fmt.Errorf("not an absolute URL")}
	}

	var (
		data     []byte
		declared string
	)
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		data, declared, err = f.get(ctx, u)
	case "gs":
		if f.objects == nil {
			return nil, &Error{Kind: InvalidURL, URL: rawURL, Err: fmt.Errorf("gs:// URLs are not enabled")}
		}
		data, declared, err = f.readObject(ctx, u)
	default:
		return nil, &Error{Kind: InvalidURL, URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if err != nil {
		return nil, err
	}

	kind, mimeType, err := classify(data, declared)
	if err != nil {
		return nil, &Error{Kind: UnsupportedType, URL: rawURL, Err: err}
	}

	slog.DebugContext(ctx, "fetching.document", "url", rawURL, "kind", kind, "mime_type", mimeType, "bytes", len(data))
	return &Source{
		URL:      rawURL,
		Kind:     kind,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, u *url.URL) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	rawURL := u.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &Error{Kind: InvalidURL, URL: rawURL, Err: err}
	}
	// Some hosts refuse requests without a browser-like user agent
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errNotPublic) {
			return nil, "", &Error{Kind: InvalidURL, URL: rawURL, Err: err}
		}
		return nil, "", &Error{Kind: Unreachable, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &Error{Kind: HTTPStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", &Error{Kind: TooLarge, URL: rawURL, Err: fmt.Errorf("content length %d exceeds %d bytes", resp.ContentLength, f.maxBytes)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", &Error{Kind: Unreachable, URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", &Error{Kind: TooLarge, URL: rawURL, Err: fmt.Errorf("body exceeds %d bytes", f.maxBytes)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (f *HTTPFetcher) readObject(ctx context.Context, u *url.URL) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	object := strings.TrimPrefix(u.Path, "/")
	if object == "" {
		return nil, "", &Error{Kind: InvalidURL, URL: u.String(), Err: fmt.Errorf("missing object name")}
	}
	data, contentType, err := f.objects.ReadObject(ctx, u.Host, object, f.maxBytes)
	if err != nil {
		if ferr, ok := err.(*Error); ok {
			ferr.URL = u.String()
			return nil, "", ferr
		}
		return nil, "", &Error{Kind: Unreachable, URL: u.String(), Err: err}
	}
	return data, contentType, nil
}

var errNotPublic = errors.New("address is not publicly reachable")

// newClient returns a client whose connections, redirects included, may
// only reach public addresses unless allowPrivate is set
func newClient(allowPrivate bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !allowPrivate {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   publicOnly,
		}
		transport.DialContext = dialer.DialContext
		// A proxy would make the check apply to the proxy, not the target
		transport.Proxy = nil
	}
	return &http.Client{Transport: transport}
}

// publicOnly rejects connections to addresses that are not routable on the
// public internet, after DNS resolution
func publicOnly(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errNotPublic, address)
	}
	if !isPublic(ap.Addr()) {
		return fmt.Errorf("%w: %s", errNotPublic, ap.Addr())
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}
