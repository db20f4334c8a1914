package detect

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"spoilshield/internal/textutil"
)

// candidate is one strategy's output. An empty title means the strategy
// found nothing and the chain proceeds.
type candidate struct {
	title   string
	episode *EpisodeInfo
}

// strategy is one entry in the ordered detection chain.
type strategy struct {
	name string
	fn   func(*PageSnapshot) candidate
}

// The fallback chain, in strict priority order. A strategy only runs when
// every earlier one returned an empty title.
var strategies = []strategy{
	{name: "structured-data", fn: fromStructuredData},
	{name: "canonical-url", fn: fromCanonicalURL},
	{name: "og-title", fn: fromOGTitle},
	{name: "document-title", fn: fromDocumentTitle},
	{name: "twitter-title", fn: fromTwitterTitle},
}

// Detect runs the strategy chain over a snapshot. The returned ShowInfo has
// an empty ShowTitle when no strategy produced one; callers must treat that
// as an explicit "no show page" signal.
func Detect(snapshot *PageSnapshot) ShowInfo {
	info := ShowInfo{
		Platform:   PlatformForURL(snapshot.URL),
		URL:        snapshot.URL,
		DetectedAt: time.Now(),
	}

	var found candidate
	for _, strat := range strategies {
		if found = strat.fn(snapshot); found.title != "" {
			break
		}
	}
	if found.title == "" {
		return info
	}

	episode := found.episode
	if episode == nil {
		episode = parseEpisodeFromSnapshot(snapshot)
	}

	info.ShowTitle = stripEpisodeMarkers(found.title)
	info.Episode = episode
	return info
}

// parseEpisodeFromSnapshot tries the episode patterns against each text
// signal in turn, titles before URLs.
func parseEpisodeFromSnapshot(snapshot *PageSnapshot) *EpisodeInfo {
	for _, text := range []string{
		snapshot.Title,
		snapshot.OGTitle,
		snapshot.TwitterTitle,
		desluggedPath(snapshot.CanonicalURL),
		desluggedPath(snapshot.URL),
	} {
		if episode := ParseEpisode(text); episode != nil {
			return episode
		}
	}
	return nil
}

func fromStructuredData(snapshot *PageSnapshot) candidate {
	for _, block := range snapshot.StructuredData {
		var data map[string]any
		if err := json.Unmarshal([]byte(block), &data); err != nil {
			continue
		}
		if found := structuredCandidate(data); found.title != "" {
			return found
		}
		// Some platforms wrap entities in an @graph list.
		if graph, ok := data["@graph"].([]any); ok {
			for _, entry := range graph {
				if node, ok := entry.(map[string]any); ok {
					if found := structuredCandidate(node); found.title != "" {
						return found
					}
				}
			}
		}
	}
	return candidate{}
}

func structuredCandidate(data map[string]any) candidate {
	switch structuredType(data) {
	case "TVEpisode":
		title := stringField(data, "name")
		if series, ok := data["partOfSeries"].(map[string]any); ok {
			if seriesName := stringField(series, "name"); seriesName != "" {
				title = seriesName
			}
		}
		episodeNumber := intField(data, "episodeNumber")
		season := 1
		if partOfSeason, ok := data["partOfSeason"].(map[string]any); ok {
			if n := intField(partOfSeason, "seasonNumber"); n > 0 {
				season = n
			}
		}
		found := candidate{title: title}
		if episodeNumber > 0 {
			found.episode = &EpisodeInfo{Season: season, Episode: episodeNumber}
		}
		return found
	case "TVSeries":
		return candidate{title: stringField(data, "name")}
	default:
		return candidate{}
	}
}

func structuredType(data map[string]any) string {
	switch value := data["@type"].(type) {
	case string:
		return value
	case []any:
		for _, entry := range value {
			if text, ok := entry.(string); ok {
				return text
			}
		}
	}
	return ""
}

func stringField(data map[string]any, key string) string {
	text, _ := data[key].(string)
	return strings.TrimSpace(text)
}

func intField(data map[string]any, key string) int {
	switch value := data[key].(type) {
	case float64:
		return int(value)
	case string:
		var n int
		for _, r := range value {
			if r < '0' || r > '9' {
				return 0
			}
			n = n*10 + int(r-'0')
		}
		return n
	}
	return 0
}

func fromCanonicalURL(snapshot *PageSnapshot) candidate {
	return candidate{title: titleFromURLSlug(snapshot.CanonicalURL)}
}

func fromOGTitle(snapshot *PageSnapshot) candidate {
	return candidate{title: cleanTitle(snapshot.OGTitle)}
}

func fromDocumentTitle(snapshot *PageSnapshot) candidate {
	return candidate{title: cleanTitle(snapshot.Title)}
}

func fromTwitterTitle(snapshot *PageSnapshot) candidate {
	return candidate{title: cleanTitle(snapshot.TwitterTitle)}
}

// titleFromURLSlug pulls the most specific hyphenated path segment and
// de-slugifies it. Numeric IDs and single-word segments are skipped since
// they carry no usable title.
func titleFromURLSlug(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]
		if !strings.Contains(segment, "-") || !strings.ContainsFunc(segment, isLetter) {
			continue
		}
		return stripEpisodeMarkers(textutil.DeslugTitle(segment))
	}
	return ""
}

func desluggedPath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return textutil.DeslugTitle(strings.Trim(parsed.Path, "/"))
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// brandSuffixes are platform names appended to page titles, dropped during
// title decomposition.
var brandSuffixes = []string{"netflix", "crunchyroll", "watch on netflix", "watch on crunchyroll"}

// cleanTitle decomposes a page title: strips a leading "Watch", drops any
// trailing platform brand, and returns the first segment split on separator
// punctuation.
func cleanTitle(raw string) string {
	text := textutil.NormalizeLine(raw)
	text = strings.TrimPrefix(text, "Watch ")
	text = stripBrandSuffix(text)
	for _, segment := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '|' || r == '–' || r == '—' || r == '•' || r == '/'
	}) {
		segment = strings.TrimSpace(segment)
		if segment == "" || isBrand(segment) {
			continue
		}
		return segment
	}
	return ""
}

// stripBrandSuffix removes a trailing " - Netflix" style brand marker,
// including hyphen-separated forms that the segment split cannot reach.
func stripBrandSuffix(text string) string {
	lowered := strings.ToLower(text)
	for _, brand := range brandSuffixes {
		for _, sep := range []string{" - ", " – ", " | "} {
			suffix := sep + brand
			if strings.HasSuffix(lowered, suffix) {
				return strings.TrimSpace(text[:len(text)-len(suffix)])
			}
		}
	}
	return text
}

func isBrand(text string) bool {
	lowered := strings.ToLower(text)
	for _, brand := range brandSuffixes {
		if lowered == brand || strings.HasPrefix(lowered, brand+" official") {
			return true
		}
	}
	return false
}

// stripEpisodeMarkers cuts a title at the first episode pattern so
// "Dark S1E3" and "Dark Season 1, Episode 3" both become "Dark".
func stripEpisodeMarkers(title string) string {
	for _, pattern := range episodePatterns {
		if loc := pattern.re.FindStringIndex(title); loc != nil {
			title = title[:loc[0]]
			break
		}
	}
	return strings.TrimRightFunc(title, func(r rune) bool {
		return r == ' ' || r == '-' || r == ',' || r == ':' || r == '|' ||
			r == '–' || r == '—'
	})
}
