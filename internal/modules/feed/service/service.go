package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/repository"
	listingDomain "github.com/reshetovitsme/tag-feed/internal/modules/listing/domain"
	listingService "github.com/reshetovitsme/tag-feed/internal/modules/listing/service"
	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const announceTimeout = 30 * time.Second

// Options controls what the publisher fetches and how it builds the feed
type Options struct {
	RepositoryURL string
	CacheKey      string
	MaxItems      int
	// CacheTTL > 0 serves a cached feed younger than the TTL without
	// fetching. Zero disables time-based reuse: every publish re-fetches and
	// the cache only backs up an unavailable listing.
	CacheTTL            time.Duration
	Metadata            domain.Metadata
	DescriptionTemplate string
}

// Announcer is told about every freshly persisted feed
type Announcer interface {
	Announce(ctx context.Context, items []domain.Item) error
}

// Service publishes the listing as a cached feed
type Service struct {
	opts        Options
	fetcher     listingService.Fetcher
	repo        repository.Repository
	serializer  Serializer
	description *template.Template
	mu          sync.Mutex
	now         func() time.Time

	announceMu sync.Mutex
	announcer  Announcer
	pending    chan []domain.Item
	closed     bool
	announceWG sync.WaitGroup
}

// descriptionData is what the item description template sees
type descriptionData struct {
	Name       string
	Link       string
	Date       time.Time
	Author     string
	Repository string
}

// New creates a feed publisher
func New(opts Options, fetcher listingService.Fetcher, repo repository.Repository, serializer Serializer) (*Service, error) {
	if opts.CacheKey == "" {
		return nil, oops.With("context", "cache key required").Wrap(errors.ErrInvalidCacheKey)
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 4
	}

	tmpl, err := template.New("description").Parse(opts.DescriptionTemplate)
	if err != nil {
		return nil, oops.With("template", opts.DescriptionTemplate, "context", "invalid item description template").Wrap(err)
	}

	return &Service{
		opts:        opts,
		fetcher:     fetcher,
		repo:        repo,
		serializer:  serializer,
		description: tmpl,
		now:         time.Now,
	}, nil
}

// SetAnnouncer registers the release announcer and starts the worker that
// delivers announcements off the publish path
func (s *Service) SetAnnouncer(a Announcer) {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()

	s.announcer = a
	if s.pending != nil || s.closed {
		return
	}
	s.pending = make(chan []domain.Item, 1)
	s.announceWG.Add(1)
	go s.announceLoop(s.pending)
}

// Close stops the announce worker once the pending batch is delivered
func (s *Service) Close() {
	s.announceMu.Lock()
	if s.closed {
		s.announceMu.Unlock()
		return
	}
	s.closed = true
	if s.pending != nil {
		close(s.pending)
	}
	s.announceMu.Unlock()

	s.announceWG.Wait()
}

// ContentType is the media type of published bodies
func (s *Service) ContentType() string {
	return s.serializer.ContentType()
}

// Publish fetches the listing and republishes the feed. An unavailable or
// empty listing is not an error: the cached feed is returned instead, or
// an item-less feed when nothing is cached. Only serialization and storage
// failures are returned.
func (s *Service) Publish(ctx context.Context) ([]byte, error) {
	cached := s.cached(ctx)
	if cached != nil && s.opts.CacheTTL > 0 && s.now().Sub(cached.ModTime) < s.opts.CacheTTL && s.current(cached) {
		slog.Debug("Serving fresh cached feed", "key", s.opts.CacheKey, "age", s.now().Sub(cached.ModTime))
		return cached.Data, nil
	}

	entries, err := s.fetcher.Fetch(ctx, s.opts.RepositoryURL)
	if err != nil || len(entries) == 0 {
		return s.serveAsIs(cached, err)
	}

	doc, err := s.Build(entries)
	if err != nil {
		return nil, err
	}

	data, err := s.serializer.Serialize(doc)
	if err != nil {
		return nil, oops.
			Code(errors.CodePersistenceFailure).
			With("key", s.opts.CacheKey, "context", "failed to serialize feed").
			Wrap(err)
	}

	stored, err := s.persist(ctx, data)
	if err != nil {
		return nil, err
	}

	slog.Info("Feed published", "key", s.opts.CacheKey, "entries", len(entries), "items", len(doc.Items))
	s.announce(doc.Items)

	return stored, nil
}

// Latest returns the cached feed, publishing first when nothing is cached
func (s *Service) Latest(ctx context.Context) ([]byte, error) {
	if cached := s.cached(ctx); cached != nil && s.current(cached) {
		return cached.Data, nil
	}
	return s.Publish(ctx)
}

// Build selects the most recent entries and turns them into a document
func (s *Service) Build(entries []listingDomain.Entry) (domain.Document, error) {
	md := s.opts.Metadata
	selected := SelectRecent(entries, s.opts.MaxItems)

	items := make([]domain.Item, 0, len(selected))
	for _, entry := range selected {
		description, err := s.describe(entry)
		if err != nil {
			return domain.Document{}, err
		}

		author := entry.Author
		if author == "" {
			author = md.Author
		}

		items = append(items, domain.Item{
			ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(entry.Link)).String(),
			Title:       entry.Name,
			Link:        entry.Link,
			Source:      entry.Link,
			Author:      author,
			AuthorEmail: md.AuthorEmail,
			EditorEmail: md.EditorEmail,
			Date:        entry.Date,
			Description: description,
		})
	}

	return domain.Document{Metadata: md, Items: items}, nil
}

// CachedItems parses the cached feed back into items, newest first
func (s *Service) CachedItems(ctx context.Context) ([]domain.Item, error) {
	artifact, err := s.repo.Get(ctx, s.opts.CacheKey)
	if err != nil {
		return nil, err
	}

	return s.parseItems(artifact)
}

func (s *Service) parseItems(artifact *repository.Artifact) ([]domain.Item, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(artifact.Data))
	if err != nil {
		return nil, oops.With("key", s.opts.CacheKey, "context", "failed to parse cached feed").Wrap(err)
	}

	return lo.Map(parsed.Items, func(it *gofeed.Item, _ int) domain.Item {
		item := domain.Item{
			ID:          it.GUID,
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
		}
		if it.PublishedParsed != nil {
			item.Date = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			item.Date = *it.UpdatedParsed
		}
		return item
	}), nil
}

func (s *Service) cached(ctx context.Context) *repository.Artifact {
	artifact, err := s.repo.Get(ctx, s.opts.CacheKey)
	if err != nil {
		if !stderrors.Is(err, errors.ErrCacheNotFound) {
			slog.Warn("Cache lookup failed, treating as empty", "key", s.opts.CacheKey, "error", err)
		}
		return nil
	}
	return artifact
}

func (s *Service) serveAsIs(cached *repository.Artifact, fetchErr error) ([]byte, error) {
	if fetchErr != nil {
		slog.Warn("Listing unavailable", "repository_url", s.opts.RepositoryURL, "error", fetchErr)
	} else {
		slog.Warn("Listing is empty", "repository_url", s.opts.RepositoryURL)
	}

	doc := domain.Document{Metadata: s.opts.Metadata}
	if cached != nil {
		if s.current(cached) {
			return cached.Data, nil
		}
		// written under another feed_format: re-render the cached items
		items, err := s.parseItems(cached)
		if err != nil {
			slog.Warn("Cached feed unreadable, serving empty feed", "key", s.opts.CacheKey, "error", err)
		}
		doc.Items = items
	}

	data, err := s.serializer.Serialize(doc)
	if err != nil {
		return nil, oops.
			Code(errors.CodePersistenceFailure).
			With("context", "failed to serialize fallback feed").
			Wrap(err)
	}
	return data, nil
}

// current reports whether the artifact is in the configured format, so its
// bytes match ContentType
func (s *Service) current(artifact *repository.Artifact) bool {
	return detectFormat(artifact.Data) == s.serializer.Format()
}

func detectFormat(data []byte) domain.Format {
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeRSS:
		return domain.FormatRss
	case gofeed.FeedTypeAtom:
		return domain.FormatAtom
	case gofeed.FeedTypeJSON:
		return domain.FormatJson
	default:
		return ""
	}
}

// persist replaces the cached artifact and reads it back. The mutex keeps
// the read-back paired with this publisher's own write.
func (s *Service) persist(ctx context.Context, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.Put(ctx, s.opts.CacheKey, data); err != nil {
		return nil, oops.
			Code(errors.CodePersistenceFailure).
			With("key", s.opts.CacheKey, "context", "failed to save feed").
			Wrap(err)
	}

	stored, err := s.repo.Get(ctx, s.opts.CacheKey)
	if err != nil {
		return nil, oops.
			Code(errors.CodePersistenceFailure).
			With("key", s.opts.CacheKey, "context", "failed to read back saved feed").
			Wrap(err)
	}
	return stored.Data, nil
}

// announce queues items for the worker. Only the newest batch is kept:
// each batch is the full current feed, so it supersedes an undelivered one.
func (s *Service) announce(items []domain.Item) {
	if len(items) == 0 {
		return
	}

	s.announceMu.Lock()
	defer s.announceMu.Unlock()

	if s.pending == nil || s.closed {
		return
	}
	select {
	case <-s.pending:
	default:
	}
	s.pending <- items
}

func (s *Service) announceLoop(pending <-chan []domain.Item) {
	defer s.announceWG.Done()

	for items := range pending {
		s.announceMu.Lock()
		announcer := s.announcer
		s.announceMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
		if err := announcer.Announce(ctx, items); err != nil {
			slog.Error("Failed to announce releases", "error", err)
		}
		cancel()
	}
}

func (s *Service) describe(entry listingDomain.Entry) (string, error) {
	var b strings.Builder
	err := s.description.Execute(&b, descriptionData{
		Name:       entry.Name,
		Link:       entry.Link,
		Date:       entry.Date,
		Author:     entry.Author,
		Repository: s.opts.RepositoryURL,
	})
	if err != nil {
		return "", oops.With("entry", entry.Name, "context", "failed to render item description").Wrap(err)
	}
	return b.String(), nil
}
