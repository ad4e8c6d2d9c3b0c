package service

import (
	"encoding/json"
	"time"

	"github.com/gorilla/feeds"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// Serializer turns a feed document into bytes of one feed dialect
type Serializer interface {
	Serialize(doc domain.Document) ([]byte, error)
	SupportsFormat(format domain.Format) bool
	Format() domain.Format
	ContentType() string
}

// FeedSerializer renders documents with gorilla/feeds
type FeedSerializer struct {
	format domain.Format
}

// NewSerializer creates a serializer for format
func NewSerializer(format domain.Format) (*FeedSerializer, error) {
	s := &FeedSerializer{format: format}
	if !s.SupportsFormat(format) {
		return nil, oops.
			Code(errors.CodeUnsupportedFormat).
			With("format", format).
			Wrap(errors.ErrUnsupportedFormat)
	}
	return s, nil
}

func (s *FeedSerializer) SupportsFormat(format domain.Format) bool {
	switch format {
	case domain.FormatRss, domain.FormatAtom, domain.FormatJson:
		return true
	default:
		return false
	}
}

// Format is the dialect this serializer writes
func (s *FeedSerializer) Format() domain.Format {
	return s.format
}

func (s *FeedSerializer) ContentType() string {
	switch s.format {
	case domain.FormatAtom:
		return "application/atom+xml; charset=utf-8"
	case domain.FormatJson:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

func (s *FeedSerializer) Serialize(doc domain.Document) ([]byte, error) {
	feed := toGorillaFeed(doc)

	switch s.format {
	case domain.FormatRss:
		rss := (&feeds.Rss{Feed: feed}).RssFeed()
		rss.WebMaster = contact(doc.Metadata.EditorEmail, doc.Metadata.Editor)
		out, err := feeds.ToXML(rss)
		if err != nil {
			return nil, oops.With("format", s.format, "context", "failed to render rss").Wrap(err)
		}
		return []byte(out), nil
	case domain.FormatAtom:
		out, err := feed.ToAtom()
		if err != nil {
			return nil, oops.With("format", s.format, "context", "failed to render atom").Wrap(err)
		}
		return []byte(out), nil
	case domain.FormatJson:
		jf := (&feeds.JSON{Feed: feed}).JSONFeed()
		jf.FeedUrl = doc.Metadata.SyndicationURL
		out, err := json.MarshalIndent(jf, "", "  ")
		if err != nil {
			return nil, oops.With("format", s.format, "context", "failed to render json feed").Wrap(err)
		}
		return out, nil
	default:
		return nil, oops.
			Code(errors.CodeUnsupportedFormat).
			With("format", s.format).
			Wrap(errors.ErrUnsupportedFormat)
	}
}

func toGorillaFeed(doc domain.Document) *feeds.Feed {
	md := doc.Metadata

	feed := &feeds.Feed{
		Title:       md.Title,
		Link:        &feeds.Link{Href: md.Link},
		Description: md.Description,
		Id:          md.SyndicationURL,
		Updated:     newest(doc.Items),
	}
	if md.Author != "" || md.AuthorEmail != "" {
		feed.Author = &feeds.Author{Name: md.Author, Email: md.AuthorEmail}
	}

	feed.Items = lo.Map(doc.Items, func(item domain.Item, _ int) *feeds.Item {
		fi := &feeds.Item{
			Id:          item.ID,
			Title:       item.Title,
			Link:        &feeds.Link{Href: item.Link},
			Description: item.Description,
			Created:     item.Date,
		}
		if item.Source != "" {
			fi.Source = &feeds.Link{Href: item.Source}
		}
		if item.Author != "" || item.AuthorEmail != "" {
			fi.Author = &feeds.Author{Name: item.Author, Email: item.AuthorEmail}
		}
		return fi
	})

	return feed
}

// newest is the latest known item date; zero when no item has one
func newest(items []domain.Item) time.Time {
	var latest time.Time
	for _, item := range items {
		if item.Date.After(latest) {
			latest = item.Date
		}
	}
	return latest
}

// contact formats an RSS person the way gorilla/feeds does for authors
func contact(email, name string) string {
	switch {
	case email == "":
		return ""
	case name == "":
		return email
	default:
		return email + " (" + name + ")"
	}
}
