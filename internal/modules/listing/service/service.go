package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/reshetovitsme/tag-feed/internal/modules/listing/domain"
	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/net/html"
)

const maxListingSize = 8 << 20

// Fetcher retrieves and parses a remote directory listing
type Fetcher interface {
	Fetch(ctx context.Context, repositoryURL string) ([]domain.Entry, error)
}

// Service fetches HTML directory listings over HTTP
type Service struct {
	client   *http.Client
	maxBytes int64
}

// New creates a listing fetcher whose requests are bounded by timeout
func New(timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxListingSize,
	}
}

// Fetch downloads the listing at repositoryURL and returns its entries in
// document order. Any failure comes back as an upstream_unavailable error
// with no entries.
func (s *Service) Fetch(ctx context.Context, repositoryURL string) ([]domain.Entry, error) {
	base, err := url.Parse(repositoryURL)
	if err != nil {
		return nil, upstreamError(repositoryURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, repositoryURL, nil)
	if err != nil {
		return nil, upstreamError(repositoryURL, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, upstreamError(repositoryURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, oops.
			Code(errors.CodeUpstreamUnavailable).
			With("repository_url", repositoryURL, "status", resp.StatusCode).
			Wrap(errors.ErrUpstreamUnavailable)
	}

	// a truncated listing would drop the newest tags, so oversize is a failure
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, upstreamError(repositoryURL, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, oops.
			Code(errors.CodeUpstreamUnavailable).
			With("repository_url", repositoryURL, "max_bytes", s.maxBytes).
			Wrap(errors.ErrUpstreamUnavailable)
	}

	entries, err := Parse(base, bytes.NewReader(body))
	if err != nil {
		return nil, upstreamError(repositoryURL, err)
	}

	slog.Debug("Listing fetched", "repository_url", repositoryURL, "entries", len(entries))
	return entries, nil
}

func upstreamError(repositoryURL string, err error) error {
	return oops.
		Code(errors.CodeUpstreamUnavailable).
		With("repository_url", repositoryURL, "cause", err.Error()).
		Wrap(errors.ErrUpstreamUnavailable)
}

// Parse extracts listing entries from an HTML index page. Links are
// resolved against base and anything that does not point below base is
// ignored.
func Parse(base *url.URL, body io.Reader) ([]domain.Entry, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, oops.With("context", "failed to parse listing").Wrap(err)
	}

	dir := *base
	if !strings.HasSuffix(dir.Path, "/") {
		dir.Path += "/"
	}
	base = &dir
	prefix := base.String()

	var entries []domain.Entry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		entry, ok := parseAnchor(base, prefix, href, a)
		if !ok {
			return
		}
		entries = append(entries, entry)
	})

	// a listing may link the same tag from several columns
	entries = lo.UniqBy(entries, func(e domain.Entry) string {
		return e.Link
	})

	return entries, nil
}

func parseAnchor(base *url.URL, prefix, href string, a *goquery.Selection) (domain.Entry, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "..") {
		return domain.Entry{}, false
	}

	text := strings.TrimSpace(a.Text())
	if strings.EqualFold(text, "Parent Directory") || text == ".." || text == "../" {
		return domain.Entry{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return domain.Entry{}, false
	}
	link := base.ResolveReference(ref).String()
	if !strings.HasPrefix(link, prefix) || link == prefix {
		return domain.Entry{}, false
	}

	name := strings.TrimSuffix(text, "/")
	if name == "" {
		name = path.Base(strings.TrimSuffix(ref.Path, "/"))
	}
	if name == "" || name == "." || name == "/" {
		return domain.Entry{}, false
	}

	author, _ := a.Attr("data-author")

	return domain.Entry{
		Name:   name,
		Link:   link,
		Date:   ParseDate(contextText(a)),
		Author: strings.TrimSpace(author),
	}, true
}

// contextText returns the text that describes an anchor: its table row,
// its list item, or for <pre> listings the rest of its line.
func contextText(a *goquery.Selection) string {
	if row := a.Closest("tr"); row.Length() > 0 {
		return row.Text()
	}
	if li := a.Closest("li"); li.Length() > 0 {
		return li.Text()
	}

	var b strings.Builder
	for n := a.Nodes[0].NextSibling; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.Data == "a" {
			break
		}
		if n.Type != html.TextNode {
			continue
		}
		line, _, found := strings.Cut(n.Data, "\n")
		b.WriteString(line)
		if found {
			break
		}
	}
	return b.String()
}

var dateLayouts = []struct {
	pattern *regexp.Regexp
	layout  string
}{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:Z|[+-]\d{2}:\d{2})`), time.RFC3339},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`), "2006-01-02 15:04:05"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}`), "2006-01-02 15:04"},
	{regexp.MustCompile(`\d{2}-[A-Za-z]{3}-\d{4} \d{2}:\d{2}`), "02-Jan-2006 15:04"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
}

// ParseDate finds the first recognizable timestamp in text. It returns the
// zero time when none is found.
func ParseDate(text string) time.Time {
	for _, d := range dateLayouts {
		match := d.pattern.FindString(text)
		if match == "" {
			continue
		}
		if t, err := time.Parse(d.layout, match); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
