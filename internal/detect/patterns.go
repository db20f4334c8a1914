package detect

import (
	"regexp"
	"strconv"
)

// Episode patterns in priority order. The first match wins; partial matches
// across patterns are never merged.
var episodePatterns = []struct {
	re            *regexp.Regexp
	defaultSeason bool
}{
	{re: regexp.MustCompile(`(?i)\bS(\d{1,2})\s*E(\d{1,4})\b`)},
	{re: regexp.MustCompile(`(?i)\bSeason\s+(\d{1,2})[,\s]+Episode\s+(\d{1,4})\b`)},
	{re: regexp.MustCompile(`(?i)\bEpisode\s+(\d{1,4})\b`), defaultSeason: true},
	{re: regexp.MustCompile(`(?i)\bEp\.?\s*(\d{1,4})\b`), defaultSeason: true},
}

// ParseEpisode extracts a season/episode pair from free text. Patterns that
// carry no season number default it to 1. Returns nil when nothing matches.
func ParseEpisode(text string) *EpisodeInfo {
	if text == "" {
		return nil
	}
	for _, pattern := range episodePatterns {
		match := pattern.re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if pattern.defaultSeason {
			episode, err := strconv.Atoi(match[1])
			if err != nil || episode <= 0 {
				continue
			}
			return &EpisodeInfo{Season: 1, Episode: episode}
		}
		season, err := strconv.Atoi(match[1])
		if err != nil || season <= 0 {
			continue
		}
		episode, err := strconv.Atoi(match[2])
		if err != nil || episode <= 0 {
			continue
		}
		return &EpisodeInfo{Season: season, Episode: episode}
	}
	return nil
}
