package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

type FetchErrorKind string

const (
	FetchErrorInvalidURL FetchErrorKind = "invalid_url"
	FetchErrorStatus     FetchErrorKind = "http_status"
	FetchErrorTimeout    FetchErrorKind = "timeout"
	FetchErrorNetwork    FetchErrorKind = "network"
	FetchErrorRedirect   FetchErrorKind = "too_many_redirects"
)

var ErrTooManyRedirects = errors.New("too many redirects")

type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchErrorStatus {
		return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether a later attempt could succeed.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case FetchErrorTimeout, FetchErrorNetwork:
		return true
	case FetchErrorStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

type FetcherOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxBytes     int64
	// Retries is the number of extra attempts for transient failures.
	Retries      int
	RetryBackoff time.Duration
	// HostInterval is the minimum spacing between requests to one host.
	HostInterval time.Duration
}

func (o *FetcherOptions) defaults() {
	if o.UserAgent == "" {
		o.UserAgent = "SiteWatch/1.0 (+https://github.com/lysyi3m/site-watch)"
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = 5
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 10 * 1024 * 1024
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
}

type Fetcher struct {
	client   *resty.Client
	opts     FetcherOptions
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	opts.defaults()

	maxRedirects := opts.MaxRedirects
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetLogger(slogLogger{}).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		}))

	return &Fetcher{
		client:   client,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch performs a GET against rawURL. Failures are returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return nil, &FetchError{Kind: FetchErrorInvalidURL, URL: rawURL, Err: err}
	}

	backoff := f.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}

		var fetchErr *FetchError
		if attempt >= f.opts.Retries || !errors.As(err, &fetchErr) || !fetchErr.Transient() {
			return nil, err
		}

		slog.Warn("Fetch failed, retrying", "url", rawURL, "attempt", attempt+1, "max_retries", f.opts.Retries, "delay", backoff.String(), "error", err)

		select {
		case <-ctx.Done():
			return nil, &FetchError{Kind: FetchErrorTimeout, URL: rawURL, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, error) {
	if err := f.limiter(rawURL).Wait(ctx); err != nil {
		return nil, &FetchError{Kind: FetchErrorTimeout, URL: rawURL, Err: err}
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return nil, classifyError(rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &FetchError{Kind: FetchErrorStatus, URL: rawURL, StatusCode: resp.StatusCode()}
	}

	data, err := io.ReadAll(io.LimitReader(body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, classifyError(rawURL, err)
	}

	truncated := int64(len(data)) > f.opts.MaxBytes
	if truncated {
		data = data[:f.opts.MaxBytes]
		slog.Warn("Response body truncated", "url", rawURL, "max_bytes", f.opts.MaxBytes)
	}

	finalURL := rawURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}

	return &Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        data,
		Truncated:   truncated,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (f *Fetcher) limiter(rawURL string) *rate.Limiter {
	if f.opts.HostInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	key := HostKey(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(f.opts.HostInterval), 1)
		f.limiters[key] = l
	}
	return l
}

func classifyError(rawURL string, err error) *FetchError {
	if errors.Is(err, ErrTooManyRedirects) {
		return &FetchError{Kind: FetchErrorRedirect, URL: rawURL, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: FetchErrorTimeout, URL: rawURL, Err: err}
	}

	return &FetchError{Kind: FetchErrorNetwork, URL: rawURL, Err: err}
}

type slogLogger struct{}

func (slogLogger) Errorf(format string, v ...any) { slog.Error(fmt.Sprintf(format, v...)) }
func (slogLogger) Warnf(format string, v ...any)  { slog.Warn(fmt.Sprintf(format, v...)) }
func (slogLogger) Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
