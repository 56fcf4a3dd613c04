package feed

import (
	"bytes"
	"errors"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/newspulse/pkg/models"
	"github.com/seenimoa/newspulse/pkg/utils"
)

// Outcome tags how an item was normalized.
type Outcome int

const (
	// Parsed means every field came from the document.
	Parsed Outcome = iota
	// Defaulted means the item is usable but a title or date was filled in.
	Defaulted
	// Skipped means the item has no link and cannot be stored.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case Defaulted:
		return "defaulted"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Defaults records which fields of a Defaulted item were filled in.
type Defaults uint8

const (
	DefaultedTitle Defaults = 1 << iota
	DefaultedDate
)

// Has reports whether d includes f.
func (d Defaults) Has(f Defaults) bool { return d&f != 0 }

// Item is one normalized feed entry.
type Item struct {
	Link        string
	Title       string
	PublishedAt time.Time // UTC
	RawDate     string    // date text as it appeared in the document
	Outcome     Outcome
	Defaults    Defaults
}

// Document is a parsed feed.
type Document struct {
	Title  string
	Format string // "rss", "atom" or "json"
	items  []Item
}

// Items yields the document's items in document order.
// The sequence is finite and may be ranged over any number of times.
func (d *Document) Items() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, it := range d.items {
			if !yield(it) {
				return
			}
		}
	}
}

// Len returns the number of items, including skipped ones.
func (d *Document) Len() int { return len(d.items) }

// Count returns how many items carry outcome o.
func (d *Document) Count(o Outcome) int {
	n := 0
	for _, it := range d.items {
		if it.Outcome == o {
			n++
		}
	}
	return n
}

// Parse decodes an RSS, Atom or JSON feed document fetched from srcURL.
// Relative item links are resolved against srcURL. Items missing a title get
// models.DefaultTitle; items with a missing or unparseable date get now.
// A document that cannot be decoded as a feed returns a *FeedError of kind ErrParse
// and no items.
func Parse(srcURL string, data []byte, now time.Time) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, parseErr(srcURL, errors.New("empty document"))
	}

	// gofeed.Parser keeps per-parse state; one per call keeps Parse safe for concurrent use.
	f, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, parseErr(srcURL, err)
	}

	base, _ := url.Parse(srcURL)
	now = utils.NormalizeUTC(now)

	doc := &Document{
		Title:  cleanText(f.Title),
		Format: f.FeedType,
		items:  make([]Item, 0, len(f.Items)),
	}
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		doc.items = append(doc.items, normalizeItem(it, base, now))
	}
	return doc, nil
}

func normalizeItem(it *gofeed.Item, base *url.URL, now time.Time) Item {
	out := Item{
		Link:    resolveLink(itemLink(it), base),
		Title:   cleanText(it.Title),
		RawDate: strings.TrimSpace(it.Published),
	}

	if out.Link == "" {
		out.Outcome = Skipped
		return out
	}

	if out.Title == "" {
		out.Title = models.DefaultTitle
		out.Defaults |= DefaultedTitle
	}

	switch {
	case it.PublishedParsed != nil:
		out.PublishedAt = utils.NormalizeUTC(*it.PublishedParsed)
	case out.RawDate == "" && it.UpdatedParsed != nil:
		out.PublishedAt = utils.NormalizeUTC(*it.UpdatedParsed)
		out.RawDate = strings.TrimSpace(it.Updated)
	default:
		out.PublishedAt = now
		out.Defaults |= DefaultedDate
	}

	if out.Defaults != 0 {
		out.Outcome = Defaulted
	}
	return out
}

func itemLink(it *gofeed.Item) string {
	if l := strings.TrimSpace(it.Link); l != "" {
		return l
	}
	for _, l := range it.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func resolveLink(link string, base *url.URL) string {
	if link == "" || base == nil {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if u.IsAbs() {
		return link
	}
	return base.ResolveReference(u).String()
}

// cleanText strips HTML tags using goquery and collapses whitespace.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
		if err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
