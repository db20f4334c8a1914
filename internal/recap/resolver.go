package recap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spoilshield/internal/logging"
	"spoilshield/internal/services"
	"spoilshield/internal/services/llm"
	"spoilshield/internal/services/tvmaze"
	"spoilshield/internal/store"
	"spoilshield/internal/textutil"
)

// Recap sources, recorded on cache entries for UI attribution.
const (
	SourceTVMaze    = "tvmaze"
	SourceFandom    = "fandom"
	SourceWebSearch = "websearch"
	SourceManual    = "manual"
)

// Request identifies the episode a recap is wanted for.
type Request struct {
	ShowID    int64
	ShowTitle string
	Season    int
	Episode   int
}

// Result is the outcome of a resolve. An empty Summary means the chain was
// exhausted; that is "no recap available", not an error.
type Result struct {
	Summary   string
	Source    string
	FromCache bool
}

// WikiFetcher is the allow-listed wiki scrape used as the second source.
type WikiFetcher interface {
	Allowed(showSlug string) bool
	EpisodeRecap(ctx context.Context, showSlug string, episode int) (string, error)
}

// Resolver walks the source chain and owns both recap cache namespaces.
type Resolver struct {
	store     *store.Store
	lookup    tvmaze.Lookup
	wiki      WikiFetcher
	sanitizer llm.Sanitizer
	web       llm.WebRecapper
	ttl       time.Duration
	logger    *slog.Logger
}

// New builds a resolver. Any source dependency may be nil, in which case
// that source is skipped.
func New(st *store.Store, lookup tvmaze.Lookup, wiki WikiFetcher, sanitizer llm.Sanitizer, web llm.WebRecapper, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Resolver{
		store:     st,
		lookup:    lookup,
		wiki:      wiki,
		sanitizer: sanitizer,
		web:       web,
		ttl:       ttl,
		logger:    logging.NewComponentLogger(logger, "recap"),
	}
}

// The canonical metadata provider and the wiki/web fallbacks cache under
// independent namespaces: the former keys by stable show ID, the latter by
// title slug since no ID may be known.
func primaryCacheKey(showID int64, season, episode int) string {
	return fmt.Sprintf("episodeRecapCache:tvmaze:%d:s%de%d", showID, season, episode)
}

func fallbackCacheKey(showTitle string, season, episode int) string {
	return fmt.Sprintf("episodeRecapCache:web:%s:s%de%d", textutil.Slugify(showTitle), season, episode)
}

// Resolve obtains a sanitized recap for the request, trying the canonical
// metadata provider, then the allow-listed wiki, then a web-knowledge
// query. Per-source failures are logged and the chain proceeds.
func (r *Resolver) Resolve(ctx context.Context, request Request) (*Result, error) {
	if request.Season <= 0 || request.Episode <= 0 {
		return nil, errors.New("season and episode must be positive")
	}

	if result := r.fromPrimary(ctx, request); result != nil {
		return result, nil
	}

	fallbackKey := fallbackCacheKey(request.ShowTitle, request.Season, request.Episode)
	if cached := r.fromCache(ctx, fallbackKey); cached != nil {
		return cached, nil
	}
	if result := r.fromWiki(ctx, request, fallbackKey); result != nil {
		return result, nil
	}
	if result := r.fromWebSearch(ctx, request, fallbackKey); result != nil {
		return result, nil
	}

	r.logger.Info("recap chain exhausted",
		logging.String("show_title", request.ShowTitle),
		logging.Int("season", request.Season),
		logging.Int("episode", request.Episode),
	)
	return &Result{}, nil
}

// SetManual stores user-supplied recap text. The user is the trusted author
// of their own spoiler boundary, so manual text skips sanitization.
func (r *Resolver) SetManual(ctx context.Context, request Request, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("manual recap text must not be empty")
	}
	if request.Season <= 0 || request.Episode <= 0 {
		return nil, errors.New("season and episode must be positive")
	}

	key := fallbackCacheKey(request.ShowTitle, request.Season, request.Episode)
	err := r.store.PutRecap(ctx, store.CachedRecap{
		CacheKey: key,
		Source:   SourceManual,
		Recap:    text,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Summary: text, Source: SourceManual}, nil
}

func (r *Resolver) fromPrimary(ctx context.Context, request Request) *Result {
	if r.lookup == nil || request.ShowID <= 0 {
		return nil
	}
	key := primaryCacheKey(request.ShowID, request.Season, request.Episode)
	if cached := r.fromCache(ctx, key); cached != nil {
		return cached
	}

	raw, err := r.lookup.EpisodeSummary(ctx, request.ShowID, request.Season, request.Episode)
	if err != nil {
		r.logSourceFailure(SourceTVMaze, err)
		return nil
	}
	return r.sanitizeAndCache(ctx, key, SourceTVMaze, raw, request)
}

func (r *Resolver) fromWiki(ctx context.Context, request Request, key string) *Result {
	// Wiki episode pages number continuously within a season; only the
	// first season's numbering is trusted here.
	if r.wiki == nil || request.Season != 1 {
		return nil
	}
	slug := textutil.Slugify(request.ShowTitle)
	if slug == "" || !r.wiki.Allowed(slug) {
		return nil
	}

	raw, err := r.wiki.EpisodeRecap(ctx, slug, request.Episode)
	if err != nil {
		r.logSourceFailure(SourceFandom, err)
		return nil
	}
	return r.sanitizeAndCache(ctx, key, SourceFandom, raw, request)
}

func (r *Resolver) fromWebSearch(ctx context.Context, request Request, key string) *Result {
	if r.web == nil || request.ShowTitle == "" {
		return nil
	}
	raw, err := r.web.WebSearchRecap(ctx, request.ShowTitle, request.Season, request.Episode)
	if err != nil {
		r.logSourceFailure(SourceWebSearch, err)
		return nil
	}
	return r.sanitizeAndCache(ctx, key, SourceWebSearch, raw, request)
}

// sanitizeAndCache enforces the hard safety invariant: raw text is cached
// and surfaced only after sanitization succeeds. A sanitization failure
// yields nothing from this source, never the raw text.
func (r *Resolver) sanitizeAndCache(ctx context.Context, key, source, raw string, request Request) *Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if r.sanitizer == nil {
		r.logSourceFailure(source, errors.New("no sanitizer configured"))
		return nil
	}

	cleaned, err := r.sanitizer.Sanitize(ctx, raw, request.Season, request.Episode)
	if err != nil || strings.TrimSpace(cleaned) == "" {
		r.logSourceFailure(source, services.Wrap(services.ErrSanitization, source, "sanitize", "", err))
		return nil
	}

	entry := store.CachedRecap{
		CacheKey:  key,
		Source:    source,
		Recap:     cleaned,
		Sanitized: true,
	}
	if err := r.store.PutRecap(ctx, entry); err != nil {
		// A failed cache write is not a failed recap.
		r.logger.Warn("recap cache write failed", logging.Error(err))
	}
	return &Result{Summary: cleaned, Source: source}
}

func (r *Resolver) fromCache(ctx context.Context, key string) *Result {
	cached, ok, err := r.store.GetRecap(ctx, key, r.ttl)
	if err != nil {
		r.logger.Warn("recap cache read failed", logging.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	// Only sanitized or manual entries may surface; anything else in the
	// cache is a bug, not a usable recap.
	if !cached.Sanitized && cached.Source != SourceManual {
		r.logger.Warn("dropping unsanitized cache entry", logging.String("cache_key", key))
		_ = r.store.DeleteRecap(ctx, key)
		return nil
	}
	return &Result{Summary: cached.Recap, Source: cached.Source, FromCache: true}
}

func (r *Resolver) logSourceFailure(source string, err error) {
	if errors.Is(err, services.ErrNotFound) {
		r.logger.Debug("recap source had no entry", logging.String("source", source))
		return
	}
	r.logger.Warn("recap source failed",
		logging.String("source", source),
		logging.Error(err),
	)
}
