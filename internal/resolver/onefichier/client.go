package onefichier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/infra/httpclient"
	"github.com/datallboy/gofichier/internal/infra/logger"
)

// Client resolves 1fichier-style landing pages: an optional password form
// that, once posted, reveals the direct download anchor.
type Client struct {
	settings  func() domain.Settings
	userAgent string
	log       *logger.Logger
}

func New(settings func() domain.Settings, userAgent string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{settings: settings, userAgent: userAgent, log: log}
}

func (c *Client) Resolve(ctx context.Context, req domain.LinkRequest) (domain.DownloadDescriptor, error) {
	raw := strings.TrimSpace(req.RawLink)
	fail := func(err error) (domain.DownloadDescriptor, error) {
		return domain.DownloadDescriptor{}, &domain.ResolutionError{Link: raw, Err: err}
	}

	link, err := url.Parse(raw)
	if err != nil || (link.Scheme != "http" && link.Scheme != "https") || link.Host == "" {
		return fail(domain.ErrInvalidLink)
	}

	settings := c.settings()
	client, err := httpclient.New(settings)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, settings.Timeout())
	defer cancel()

	resp, err := c.do(ctx, client, http.MethodGet, link.String(), nil)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if d, ok := directDescriptor(resp, req.Password); ok {
		c.log.Debug("%s is already a direct link", raw)
		return d, nil
	}

	landing, err := parsePage(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("%w: unreadable page: %v", domain.ErrInvalidLink, err))
	}
	if landing.mustWait {
		return fail(domain.ErrRateLimited)
	}

	result := landing
	if landing.link == "" {
		if landing.form == nil {
			return fail(fmt.Errorf("%w: no download link on page", domain.ErrInvalidLink))
		}
		if landing.form.hasPassword && req.Password == "" {
			return fail(domain.ErrPasswordRequired)
		}

		result, err = c.submit(ctx, client, resp.Request.URL, landing.form, req.Password)
		if err != nil {
			return fail(err)
		}
		if result.link == "" {
			switch {
			case result.mustWait:
				return fail(domain.ErrRateLimited)
			case result.form != nil && result.form.hasPassword:
				return fail(domain.ErrWrongPassword)
			default:
				return fail(fmt.Errorf("%w: no download link after submitting the form", domain.ErrInvalidLink))
			}
		}
	}

	direct, err := resp.Request.URL.Parse(result.link)
	if err != nil {
		return fail(fmt.Errorf("%w: bad download href %q", domain.ErrInvalidLink, result.link))
	}

	name := firstNonEmpty(result.linkName, landing.fileName, result.fileName, lastSegment(direct))

	return domain.DownloadDescriptor{
		DirectURL:   direct.String(),
		DisplayName: name,
		Password:    req.Password,
	}, nil
}

func (c *Client) submit(ctx context.Context, client *http.Client, base *url.URL, f *form, password string) (*page, error) {
	target := base
	if f.action != "" {
		u, err := base.Parse(f.action)
		if err != nil {
			return nil, fmt.Errorf("%w: bad form action %q", domain.ErrInvalidLink, f.action)
		}
		target = u
	}

	values := url.Values{}
	for k, v := range f.fields {
		values[k] = v
	}
	if password != "" {
		values.Set("pass", password)
	}
	values.Set("dl_no_ssl", "on")
	values.Set("dlinline", "on")

	resp, err := c.do(ctx, client, http.MethodPost, target.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	p, err := parsePage(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable page: %v", domain.ErrInvalidLink, err)
	}
	return p, nil
}

// do sends the request and maps transport and status failures onto the
// resolution error taxonomy.
func (c *Client) do(ctx context.Context, client *http.Client, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidLink, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrHostUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, domain.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidLink, resp.Status)
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrHostUnreachable, resp.Status)
	}

	return resp, nil
}

// directDescriptor recognises a response that is already the file itself.
func directDescriptor(resp *http.Response, password string) (domain.DownloadDescriptor, bool) {
	disposition := resp.Header.Get("Content-Disposition")
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	attachment := strings.HasPrefix(strings.ToLower(strings.TrimSpace(disposition)), "attachment")
	if !attachment && (mediaType == "text/html" || mediaType == "application/xhtml+xml") {
		return domain.DownloadDescriptor{}, false
	}

	name := ""
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		name = params["filename"]
	}

	return domain.DownloadDescriptor{
		DirectURL:   resp.Request.URL.String(),
		DisplayName: firstNonEmpty(name, lastSegment(resp.Request.URL)),
		Password:    password,
	}, true
}

func lastSegment(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return u.Host
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
