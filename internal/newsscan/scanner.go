// Package newsscan turns RSS/Atom news feeds into signals: fetch, block
// list, classify, ingest and optionally promote.
package newsscan

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/pkg/retry"
	"github.com/ignite/outreach-engine/internal/service/signal"
)

// maxItemsPerFeed caps how many entries of one feed are considered per scan.
const maxItemsPerFeed = 30

// Article is one feed entry reduced to what classification needs.
type Article struct {
	URL       string
	Headline  string
	Snippet   string
	Source    string
	City      string
	Published *time.Time
}

// Signals is the subset of *signal.Service the scanner drives.
type Signals interface {
	GetByURL(ctx context.Context, sourceURL string) (*domain.NewsSignal, error)
	Ingest(ctx context.Context, in signal.IngestInput) (signal.IngestResult, error)
	Promote(ctx context.Context, id int64) (*domain.NewsSignal, *domain.Contact, error)
}

// Report summarizes one scan.
type Report struct {
	Feeds    int `json:"feeds"`
	Articles int `json:"articles"`
	Seen     int `json:"seen"`
	Blocked  int `json:"blocked"`
	Rejected int `json:"rejected"`
	Ingested int `json:"ingested"`
	Promoted int `json:"promoted"`
	Errors   int `json:"errors"`
}

// Scanner polls the configured feeds.
type Scanner struct {
	sources     []config.NewsSource
	http        retry.HTTPDoer
	parser      *gofeed.Parser
	rules       KeywordRules
	classifier  Classifier
	signals     Signals
	autoPromote bool
	log         *logger.Logger
}

// Options configures a Scanner.
type Options struct {
	Sources     []config.NewsSource
	AutoPromote bool
	HTTP        retry.HTTPDoer // nil uses a retrying default client
	Classifier  Classifier     // nil uses keyword rules only
}

func NewScanner(signals Signals, rules KeywordRules, opts Options) *Scanner {
	doer := opts.HTTP
	if doer == nil {
		doer = retry.NewClient(&http.Client{Timeout: 15 * time.Second}, 2)
	}
	cl := opts.Classifier
	if cl == nil {
		cl = NewKeywordClassifier(rules)
	}
	return &Scanner{
		sources:     opts.Sources,
		http:        doer,
		parser:      gofeed.NewParser(),
		rules:       rules,
		classifier:  cl,
		signals:     signals,
		autoPromote: opts.AutoPromote,
		log:         logger.With("component", "newsscan"),
	}
}

// ScanAll scans every source. A failing feed is counted and skipped.
func (s *Scanner) ScanAll(ctx context.Context) Report {
	var total Report
	for _, src := range s.sources {
		if ctx.Err() != nil {
			break
		}
		r, err := s.Scan(ctx, src)
		if err != nil {
			s.log.Warn("feed scan failed", "source", src.Name, "error", err)
			total.Errors++
			continue
		}
		total.add(r)
	}
	s.log.Info("news scan complete",
		"feeds", total.Feeds, "articles", total.Articles, "ingested", total.Ingested, "promoted", total.Promoted)
	return total
}

// Scan fetches and processes one feed.
func (s *Scanner) Scan(ctx context.Context, src config.NewsSource) (Report, error) {
	articles, err := s.fetch(ctx, src)
	if err != nil {
		return Report{}, err
	}
	r := Report{Feeds: 1, Articles: len(articles)}
	for _, a := range articles {
		if ctx.Err() != nil {
			break
		}
		s.process(ctx, a, &r)
	}
	return r, nil
}

func (s *Scanner) process(ctx context.Context, a Article, r *Report) {
	if _, err := s.signals.GetByURL(ctx, a.URL); err == nil {
		r.Seen++
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.log.Debug("article skipped", "url", a.URL, "error", err)
		r.Errors++
		return
	}
	if s.rules.Blocked(a.Headline + " " + a.Snippet) {
		r.Blocked++
		return
	}

	c, ok, err := s.classifier.Classify(ctx, a)
	if err != nil {
		s.log.Warn("classification failed", "url", a.URL, "error", err)
		r.Errors++
		return
	}
	if !ok {
		r.Rejected++
		return
	}

	res, err := s.signals.Ingest(ctx, signal.IngestInput{
		SourceURL:   a.URL,
		Source:      a.Source,
		SignalType:  c.SignalType,
		Headline:    a.Headline,
		Snippet:     a.Snippet,
		CompanyName: c.CompanyName,
		City:        c.City,
		PublishedAt: a.Published,
	})
	if err != nil {
		s.log.Warn("ingest failed", "url", a.URL, "error", err)
		r.Errors++
		return
	}
	if res.Duplicate {
		r.Seen++
		return
	}
	r.Ingested++

	if !s.autoPromote || res.Signal.CompanyName == "" {
		return
	}
	if _, _, err := s.signals.Promote(ctx, res.Signal.ID); err != nil {
		s.log.Warn("auto-promote failed", "signal_id", res.Signal.ID, "error", err)
		r.Errors++
		return
	}
	r.Promoted++
}

func (s *Scanner) fetch(ctx context.Context, src config.NewsSource) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "outreach-engine-newsscan/1.0")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", src.URL, resp.StatusCode)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.URL, err)
	}

	items := feed.Items
	if len(items) > maxItemsPerFeed {
		items = items[:maxItemsPerFeed]
	}
	out := make([]Article, 0, len(items))
	for _, item := range items {
		if item.Link == "" {
			continue
		}
		a := Article{
			URL:      item.Link,
			Headline: strings.TrimSpace(item.Title),
			Snippet:  stripHTML(item.Description),
			Source:   src.Name,
			City:     src.City,
		}
		if item.PublishedParsed != nil {
			a.Published = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.Published = item.UpdatedParsed
		}
		out = append(out, a)
	}
	return out, nil
}

var textPolicy = bluemonday.StrictPolicy()

// stripHTML reduces a feed description to plain text. Tags become word
// breaks so adjacent blocks do not run together.
func stripHTML(s string) string {
	s = html.UnescapeString(textPolicy.Sanitize(strings.ReplaceAll(s, "<", " <")))
	return strings.Join(strings.Fields(s), " ")
}

func (r *Report) add(o Report) {
	r.Feeds += o.Feeds
	r.Articles += o.Articles
	r.Seen += o.Seen
	r.Blocked += o.Blocked
	r.Rejected += o.Rejected
	r.Ingested += o.Ingested
	r.Promoted += o.Promoted
	r.Errors += o.Errors
}
