package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/repository"
	listingDomain "github.com/reshetovitsme/tag-feed/internal/modules/listing/domain"
	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/oops"
)

const cacheKey = "rss20.cache"

type fakeFetcher struct {
	entries []listingDomain.Entry
	err     error
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, repositoryURL string) ([]listingDomain.Entry, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type failingRepository struct {
	*repository.MemoryStorage
}

func (r failingRepository) Put(ctx context.Context, key string, data []byte) (*repository.Artifact, error) {
	return nil, stderrors.New("disk full")
}

type recordingAnnouncer struct {
	mu    sync.Mutex
	calls [][]domain.Item
	err   error
}

func (a *recordingAnnouncer) Announce(ctx context.Context, items []domain.Item) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, items)
	return a.err
}

func testOptions() Options {
	return Options{
		RepositoryURL:       "http://example.org/tags/",
		CacheKey:            cacheKey,
		MaxItems:            4,
		Metadata:            sampleDocument().Metadata,
		DescriptionTemplate: "{{.Name}} tagged at {{.Link}}",
	}
}

func newTestService(t *testing.T, opts Options, fetcher *fakeFetcher, repo repository.Repository) *Service {
	t.Helper()
	serializer, err := NewSerializer(domain.FormatRss)
	if err != nil {
		t.Fatalf("NewSerializer() error = %v", err)
	}
	svc, err := New(opts, fetcher, repo, serializer)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func parseFeed(t *testing.T, data []byte) *gofeed.Feed {
	t.Helper()
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse() error = %v\n%s", err, data)
	}
	return feed
}

func itemTitles(feed *gofeed.Feed) []string {
	out := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		out = append(out, item.Title)
	}
	return out
}

func TestPublishSelectsMostRecentEntries(t *testing.T) {
	repo := repository.NewMemoryStorage()
	svc := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(10)}, repo)

	data, err := svc.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	feed := parseFeed(t, data)
	if got, want := itemTitles(feed), []string{"10", "9", "8", "7"}; !slices.Equal(got, want) {
		t.Errorf("item titles = %v, want %v", got, want)
	}

	stored, err := repo.Get(context.Background(), cacheKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(stored.Data, data) {
		t.Error("response differs from the cached artifact")
	}
}

func TestPublishWithFewerEntriesThanLimit(t *testing.T) {
	svc := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(2)}, repository.NewMemoryStorage())

	data, err := svc.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got, want := itemTitles(parseFeed(t, data)), []string{"2", "1"}; !slices.Equal(got, want) {
		t.Errorf("item titles = %v, want %v", got, want)
	}
}

func TestPublishServesCacheWhenListingUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryStorage()
	previous := []byte("<rss>previous</rss>")
	if _, err := repo.Put(ctx, cacheKey, previous); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	for name, fetcher := range map[string]*fakeFetcher{
		"fetch error":   {err: oops.Code(errors.CodeUpstreamUnavailable).Wrap(errors.ErrUpstreamUnavailable)},
		"empty listing": {},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, testOptions(), fetcher, repo)

			data, err := svc.Publish(ctx)
			if err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			if !bytes.Equal(data, previous) {
				t.Errorf("Publish() = %q, want cached artifact", data)
			}

			stored, _ := repo.Get(ctx, cacheKey)
			if !bytes.Equal(stored.Data, previous) {
				t.Error("cached artifact was modified")
			}
		})
	}
}

func TestPublishServesEmptyFeedWithoutCache(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryStorage()
	svc := newTestService(t, testOptions(), &fakeFetcher{err: errors.ErrUpstreamUnavailable}, repo)

	data, err := svc.Publish(ctx)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	feed := parseFeed(t, data)
	if feed.Title != testOptions().Metadata.Title {
		t.Errorf("Title = %q", feed.Title)
	}
	if len(feed.Items) != 0 {
		t.Errorf("got %d items, want 0", len(feed.Items))
	}
	if _, err := repo.Get(ctx, cacheKey); !stderrors.Is(err, errors.ErrCacheNotFound) {
		t.Errorf("empty feed should not be persisted, Get() error = %v", err)
	}
}

func TestPublishPersistenceFailure(t *testing.T) {
	repo := failingRepository{repository.NewMemoryStorage()}
	svc := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(3)}, repo)

	data, err := svc.Publish(context.Background())
	if err == nil {
		t.Fatal("Publish() error = nil, want persistence failure")
	}
	if data != nil {
		t.Errorf("Publish() returned %d bytes alongside an error", len(data))
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() != errors.CodePersistenceFailure {
		t.Errorf("error code = %v, want %s", err, errors.CodePersistenceFailure)
	}
}

func TestPublishHonoursCacheTTL(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryStorage()
	cached := []byte("<rss>cached</rss>")
	if _, err := repo.Put(ctx, cacheKey, cached); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	opts := testOptions()
	opts.CacheTTL = time.Hour
	fetcher := &fakeFetcher{entries: numberedEntries(5)}
	svc := newTestService(t, opts, fetcher, repo)

	data, err := svc.Publish(ctx)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !bytes.Equal(data, cached) || fetcher.calls.Load() != 0 {
		t.Errorf("fresh cache should be served without fetching (calls=%d)", fetcher.calls.Load())
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	data, err = svc.Publish(ctx)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if bytes.Equal(data, cached) || fetcher.calls.Load() != 1 {
		t.Errorf("expired cache should be republished (calls=%d)", fetcher.calls.Load())
	}
}

func TestPublishWithoutTTLAlwaysFetches(t *testing.T) {
	fetcher := &fakeFetcher{entries: numberedEntries(3)}
	svc := newTestService(t, testOptions(), fetcher, repository.NewMemoryStorage())

	for i := 0; i < 3; i++ {
		if _, err := svc.Publish(context.Background()); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if got := fetcher.calls.Load(); got != 3 {
		t.Errorf("fetch calls = %d, want 3", got)
	}
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{entries: numberedEntries(3)}
	svc := newTestService(t, testOptions(), fetcher, repository.NewMemoryStorage())

	first, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	second, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Latest() should return the cached feed")
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestBuild(t *testing.T) {
	svc := newTestService(t, testOptions(), &fakeFetcher{}, repository.NewMemoryStorage())

	date := time.Date(2005, 6, 14, 9, 30, 0, 0, time.UTC)
	doc, err := svc.Build([]listingDomain.Entry{
		{Name: "1.0.0", Link: "http://example.org/tags/1.0.0/"},
		{Name: "1.0.1", Link: "http://example.org/tags/1.0.1/", Date: date, Author: "alex"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(doc.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(doc.Items))
	}

	newest := doc.Items[0]
	if newest.Title != "1.0.1" || newest.Link != newest.Source || !newest.Date.Equal(date) {
		t.Errorf("items[0] = %+v", newest)
	}
	if newest.Author != "alex" {
		t.Errorf("items[0].Author = %q, want listing author", newest.Author)
	}
	if doc.Items[1].Author != "TMate Software" {
		t.Errorf("items[1].Author = %q, want fallback author", doc.Items[1].Author)
	}
	if newest.Description != "1.0.1 tagged at http://example.org/tags/1.0.1/" {
		t.Errorf("items[0].Description = %q", newest.Description)
	}
	if newest.AuthorEmail != "support@tmatesoft.com" || newest.EditorEmail != "support@tmatesoft.com" {
		t.Errorf("items[0] contacts = %q / %q", newest.AuthorEmail, newest.EditorEmail)
	}
	if newest.ID == "" || newest.ID == doc.Items[1].ID {
		t.Errorf("item ids should be distinct and non-empty: %q %q", newest.ID, doc.Items[1].ID)
	}

	again, _ := svc.Build([]listingDomain.Entry{{Name: "1.0.1", Link: "http://example.org/tags/1.0.1/"}})
	if again.Items[0].ID != newest.ID {
		t.Error("item id should be stable for the same link")
	}
}

func TestNewRejectsBadTemplate(t *testing.T) {
	opts := testOptions()
	opts.DescriptionTemplate = "{{.Name"
	serializer, _ := NewSerializer(domain.FormatRss)
	if _, err := New(opts, &fakeFetcher{}, repository.NewMemoryStorage(), serializer); err == nil {
		t.Error("New() with a broken template should fail")
	}
}

func TestPublishAnnouncesItems(t *testing.T) {
	announcer := &recordingAnnouncer{err: stderrors.New("telegram down")}
	svc := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(6)}, repository.NewMemoryStorage())
	svc.SetAnnouncer(announcer)

	if _, err := svc.Publish(context.Background()); err != nil {
		t.Fatalf("Publish() error = %v, announce failures must not fail a publish", err)
	}
	svc.Close()

	if len(announcer.calls) != 1 || len(announcer.calls[0]) != 4 {
		t.Fatalf("announcer calls = %v", announcer.calls)
	}
	if announcer.calls[0][0].Title != "6" {
		t.Errorf("first announced item = %q, want newest", announcer.calls[0][0].Title)
	}
}

func TestCachedItems(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(5)}, repository.NewMemoryStorage())

	if _, err := svc.CachedItems(ctx); !stderrors.Is(err, errors.ErrCacheNotFound) {
		t.Errorf("CachedItems() before publish error = %v, want ErrCacheNotFound", err)
	}
	if _, err := svc.Publish(ctx); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	items, err := svc.CachedItems(ctx)
	if err != nil {
		t.Fatalf("CachedItems() error = %v", err)
	}
	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.Title)
	}
	if want := []string{"5", "4", "3", "2"}; !slices.Equal(got, want) {
		t.Errorf("cached item titles = %v, want %v", got, want)
	}
}

func TestConcurrentPublishesLastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}

	a := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(10)}, repo)
	b := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(3)}, repo)

	expected := make([][]byte, 0, 2)
	for _, svc := range []*Service{a, b} {
		entries, _ := svc.fetcher.Fetch(ctx, "")
		doc, err := svc.Build(entries)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		data, err := svc.serializer.Serialize(doc)
		if err != nil {
			t.Fatalf("Serialize() error = %v", err)
		}
		expected = append(expected, data)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, svc := range []*Service{a, b} {
			wg.Add(1)
			go func(svc *Service) {
				defer wg.Done()
				data, err := svc.Publish(ctx)
				if err != nil {
					t.Errorf("Publish() error = %v", err)
					return
				}
				if !bytes.Equal(data, expected[0]) && !bytes.Equal(data, expected[1]) {
					t.Error("response is not the output of a single publish")
				}
			}(svc)
		}
	}
	wg.Wait()

	final, err := repo.Get(ctx, cacheKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(final.Data, expected[0]) && !bytes.Equal(final.Data, expected[1]) {
		t.Error("final artifact does not match either publish")
	}
}

type blockingAnnouncer struct {
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (a *blockingAnnouncer) Announce(ctx context.Context, items []domain.Item) error {
	n := a.running.Add(1)
	defer a.running.Add(-1)
	for {
		peak := a.peak.Load()
		if n <= peak || a.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	<-a.release
	a.calls.Add(1)
	return nil
}

func TestPublishDoesNotWaitForAnnouncer(t *testing.T) {
	announcer := &blockingAnnouncer{release: make(chan struct{})}
	svc := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(6)}, repository.NewMemoryStorage())
	svc.SetAnnouncer(announcer)

	const publishers = 8
	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Publish(context.Background()); err != nil {
				t.Errorf("Publish() error = %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish() blocked on a pending announcement")
	}

	close(announcer.release)
	svc.Close()

	if got := announcer.peak.Load(); got != 1 {
		t.Errorf("concurrent Announce calls = %d, want 1", got)
	}
	// one batch in flight plus at most one queued
	if got := announcer.calls.Load(); got < 1 || got > 2 {
		t.Errorf("Announce calls = %d, want 1 or 2", got)
	}
}

func TestPublishAfterCloseSkipsAnnouncer(t *testing.T) {
	announcer := &recordingAnnouncer{}
	svc := newTestService(t, testOptions(), &fakeFetcher{entries: numberedEntries(3)}, repository.NewMemoryStorage())
	svc.SetAnnouncer(announcer)
	svc.Close()

	if _, err := svc.Publish(context.Background()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(announcer.calls) != 0 {
		t.Errorf("announcer called after Close: %v", announcer.calls)
	}
}

// atomCache publishes entries as Atom into a fresh store, as a previous run
// configured with feed_format=atom would have left it
func atomCache(t *testing.T, entries []listingDomain.Entry) *repository.MemoryStorage {
	t.Helper()
	repo := repository.NewMemoryStorage()
	serializer, err := NewSerializer(domain.FormatAtom)
	if err != nil {
		t.Fatalf("NewSerializer() error = %v", err)
	}
	svc, err := New(testOptions(), &fakeFetcher{entries: entries}, repo, serializer)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := svc.Publish(context.Background()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	return repo
}

func TestCachedFeedInOtherFormat(t *testing.T) {
	isRSS := func(data []byte) bool {
		return gofeed.DetectFeedType(bytes.NewReader(data)) == gofeed.FeedTypeRSS
	}

	t.Run("unavailable listing re-renders cached items", func(t *testing.T) {
		repo := atomCache(t, numberedEntries(5))
		svc := newTestService(t, testOptions(), &fakeFetcher{err: errors.ErrUpstreamUnavailable}, repo)

		data, err := svc.Publish(context.Background())
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if !isRSS(data) {
			t.Fatalf("body is not %s:\n%s", svc.ContentType(), data)
		}
		if got, want := itemTitles(parseFeed(t, data)), []string{"5", "4", "3", "2"}; !slices.Equal(got, want) {
			t.Errorf("item titles = %v, want %v", got, want)
		}
	})

	t.Run("fresh ttl does not reuse it", func(t *testing.T) {
		repo := atomCache(t, numberedEntries(5))
		opts := testOptions()
		opts.CacheTTL = time.Hour
		fetcher := &fakeFetcher{entries: numberedEntries(6)}
		svc := newTestService(t, opts, fetcher, repo)

		data, err := svc.Publish(context.Background())
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if !isRSS(data) || fetcher.calls.Load() != 1 {
			t.Errorf("want a fresh rss publish (calls=%d)", fetcher.calls.Load())
		}
	})

	t.Run("latest republishes", func(t *testing.T) {
		repo := atomCache(t, numberedEntries(5))
		fetcher := &fakeFetcher{entries: numberedEntries(5)}
		svc := newTestService(t, testOptions(), fetcher, repo)

		data, err := svc.Latest(context.Background())
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if !isRSS(data) || fetcher.calls.Load() != 1 {
			t.Errorf("want a fresh rss publish (calls=%d)", fetcher.calls.Load())
		}
	})
}
