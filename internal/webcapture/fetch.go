package webcapture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"github.com/starford/notetaker/internal/apperr"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultMaxBody   = 5 << 20
	DefaultUserAgent = "notetaker/1.0 (+web capture)"
	maxRedirects     = 5
)

// Page is the reduced result of a successful fetch.
type Page struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status"`
	// Title is the document <title>, if any.
	Title string `json:"title,omitempty"`
	// Text is the tag-free, whitespace-collapsed body. Empty when the
	// page had no readable text.
	Text string `json:"text"`
}

// Readable reports whether the page produced any text.
func (p Page) Readable() bool {
	return p.Text != ""
}

// String returns the text or the no-readable-text notice.
func (p Page) String() string {
	if !p.Readable() {
		return NoReadableText
	}
	return p.Text
}

// Config configures a Fetcher.
type Config struct {
	Timeout   time.Duration
	MaxBody   int64
	UserAgent string
	// BlockPrivateHosts rejects loopback and cloud metadata targets,
	// including redirect hops.
	BlockPrivateHosts bool
}

// Fetcher issues one GET per call. It never retries.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	block     bool
	policy    *bluemonday.Policy
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher. Zero config fields take defaults.
func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBody,
		block:     cfg.BlockPrivateHosts,
		policy:    bluemonday.StrictPolicy(),
		logger:    logger,
	}
	f.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			if f.block {
				return checkBlockedHost(req.URL.Hostname())
			}
			return nil
		},
	}
	return f
}

// Fetch retrieves rawURL and reduces the body to plain text. A non-2xx
// status fails with FetchFailed carrying the status; transport errors
// fail with FetchFailed wrapping the cause.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, ok := parse(rawURL)
	if !ok {
		return Page{}, apperr.Validation("invalid URL: %q", rawURL)
	}
	if f.block {
		if err := checkBlockedHost(u.Hostname()); err != nil {
			return Page{}, apperr.FetchCause(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, apperr.FetchCause(err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, apperr.FetchCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Info("webcapture: fetch rejected",
			slog.String("url", u.String()),
			slog.Int("status", resp.StatusCode))
		return Page{}, apperr.FetchStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return Page{}, apperr.FetchCause(fmt.Errorf("read body: %w", err))
	}

	page := Page{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode}
	if textual(resp.Header.Get("Content-Type")) {
		page.Title = extractTitle(body)
		page.Text = f.extractText(body)
	}
	f.logger.Info("webcapture: fetched",
		slog.String("url", page.URL),
		slog.Int("bytes", len(body)),
		slog.Bool("readable", page.Readable()),
		slog.Duration("took", time.Since(start)))
	return page, nil
}

// extractText strips all markup, decodes entities and collapses runs of
// whitespace into single spaces.
func (f *Fetcher) extractText(body []byte) string {
	stripped := f.policy.SanitizeBytes(body)
	return strings.Join(strings.Fields(html.UnescapeString(string(stripped))), " ")
}

// textual reports whether a Content-Type can carry readable text. A
// missing header is treated as text.
func textual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/xhtml+xml", mt == "application/xml", strings.HasSuffix(mt, "+xml"):
		return true
	}
	return false
}

// extractTitle returns the text of the first <title> inside <head>.
func extractTitle(body []byte) string {
	z := nethtml.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return ""
		case nethtml.StartTagToken:
			name, _ := z.TagName()
			inTitle = string(name) == "title"
		case nethtml.TextToken:
			if inTitle {
				return strings.Join(strings.Fields(string(z.Text())), " ")
			}
		case nethtml.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "head":
				return ""
			case "title":
				inTitle = false
			}
		}
	}
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() || ip.IsUnspecified() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// IsFetchStatus reports whether err is a FetchFailed with the given
// HTTP status.
func IsFetchStatus(err error, status int) bool {
	var ae *apperr.Error
	return errors.As(err, &ae) && ae.Code == apperr.CodeFetchFailed && ae.Status == status
}
