package detect_test

import (
	"sync"
	"testing"
	"time"

	"spoilshield/internal/detect"
	"spoilshield/internal/logging"
)

func TestParseEpisodePatterns(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		season  int
		episode int
	}{
		{name: "compact", text: "Dark S2E7", season: 2, episode: 7},
		{name: "spelled out", text: "Season 1, Episode 4", season: 1, episode: 4},
		{name: "episode only defaults season", text: "Episode 12 - The Bridge", season: 1, episode: 12},
		{name: "ep abbreviation", text: "Jujutsu Kaisen Ep 5", season: 1, episode: 5},
		{name: "ep with period", text: "Ep. 9", season: 1, episode: 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := detect.ParseEpisode(tc.text)
			if info == nil {
				t.Fatalf("ParseEpisode(%q) = nil", tc.text)
			}
			if info.Season != tc.season || info.Episode != tc.episode {
				t.Fatalf("ParseEpisode(%q) = s%de%d, want s%de%d",
					tc.text, info.Season, info.Episode, tc.season, tc.episode)
			}
		})
	}

	if info := detect.ParseEpisode("no markers here"); info != nil {
		t.Fatalf("expected nil, got %+v", info)
	}
}

func TestParseEpisodeFirstPatternWins(t *testing.T) {
	// S2E7 outranks the bare "Episode 3" even though both match.
	info := detect.ParseEpisode("Recap of Episode 3 ... continue with S2E7")
	if info == nil || info.Season != 2 || info.Episode != 7 {
		t.Fatalf("got %+v, want s2e7", info)
	}
}

func TestDetectStructuredDataWins(t *testing.T) {
	snapshot := &detect.PageSnapshot{
		URL:     "https://www.netflix.com/watch/81481198",
		Title:   "Something Unrelated | Netflix",
		OGTitle: "Wrong Title",
		StructuredData: []string{
			`{"@type":"TVEpisode","name":"The Cursed Womb","episodeNumber":5,
			  "partOfSeason":{"seasonNumber":1},
			  "partOfSeries":{"name":"Jujutsu Kaisen"}}`,
		},
	}

	info := detect.Detect(snapshot)
	if info.ShowTitle != "Jujutsu Kaisen" {
		t.Fatalf("show title = %q", info.ShowTitle)
	}
	if info.Episode == nil || info.Episode.Season != 1 || info.Episode.Episode != 5 {
		t.Fatalf("episode = %+v", info.Episode)
	}
	if info.Platform != detect.PlatformNetflix {
		t.Fatalf("platform = %q", info.Platform)
	}
}

func TestDetectCanonicalURLFallback(t *testing.T) {
	snapshot := &detect.PageSnapshot{
		URL:          "https://www.crunchyroll.com/watch/GRDV0019R/alone",
		CanonicalURL: "https://www.crunchyroll.com/series/GRDV0019R/jujutsu-kaisen",
	}

	info := detect.Detect(snapshot)
	if info.ShowTitle != "Jujutsu Kaisen" {
		t.Fatalf("show title = %q", info.ShowTitle)
	}
	if info.Platform != detect.PlatformCrunchyroll {
		t.Fatalf("platform = %q", info.Platform)
	}
}

func TestDetectTitleDecomposition(t *testing.T) {
	snapshot := &detect.PageSnapshot{
		URL:   "https://www.netflix.com/watch/80100172",
		Title: "Watch Dark S1E3 | Netflix Official Site",
	}

	info := detect.Detect(snapshot)
	if info.ShowTitle != "Dark" {
		t.Fatalf("show title = %q", info.ShowTitle)
	}
	if info.Episode == nil || info.Episode.Season != 1 || info.Episode.Episode != 3 {
		t.Fatalf("episode = %+v", info.Episode)
	}
}

func TestDetectBrandSuffixWithHyphen(t *testing.T) {
	snapshot := &detect.PageSnapshot{
		URL:     "https://www.crunchyroll.com/watch/G0XHWM1Q5",
		OGTitle: "Jujutsu Kaisen Episode 5 - Crunchyroll",
	}

	info := detect.Detect(snapshot)
	if info.ShowTitle != "Jujutsu Kaisen" {
		t.Fatalf("show title = %q", info.ShowTitle)
	}
	if info.Episode == nil || info.Episode.Episode != 5 {
		t.Fatalf("episode = %+v", info.Episode)
	}
}

func TestDetectBulletAndSlashSeparators(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Severance S2E1 • Watch Now", "Severance"},
		{"Dark S1E3 / Netflix", "Dark"},
	}
	for _, tc := range cases {
		info := detect.Detect(&detect.PageSnapshot{
			URL:   "https://www.netflix.com/watch/80100172",
			Title: tc.title,
		})
		if info.ShowTitle != tc.want {
			t.Fatalf("title %q: show title = %q, want %q", tc.title, info.ShowTitle, tc.want)
		}
	}
}

func TestDetectNoShowYieldsEmptyTitle(t *testing.T) {
	snapshot := &detect.PageSnapshot{
		URL:   "https://www.netflix.com/browse",
		Title: "Netflix",
	}

	info := detect.Detect(snapshot)
	if info.ShowTitle != "" {
		t.Fatalf("show title = %q, want empty", info.ShowTitle)
	}
}

func TestRunnerDebouncesSnapshots(t *testing.T) {
	var (
		mu      sync.Mutex
		results []detect.ShowInfo
	)
	runner := detect.NewRunner(logging.NewNop(), 20*time.Millisecond,
		detect.WithPublisher(func(_ int, info detect.ShowInfo) {
			mu.Lock()
			results = append(results, info)
			mu.Unlock()
		}),
	)

	for i := 0; i < 4; i++ {
		runner.OnSnapshot(&detect.PageSnapshot{
			TabID: 1,
			URL:   "https://www.netflix.com/watch/80100172",
			Title: "Dark S1E3 | Netflix",
		})
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	if results[0].ShowTitle != "Dark" {
		t.Fatalf("show title = %q", results[0].ShowTitle)
	}
}

func TestRunnerNavigationHookFiresOnURLChange(t *testing.T) {
	var (
		mu        sync.Mutex
		navigated int
	)
	runner := detect.NewRunner(logging.NewNop(), time.Millisecond,
		detect.WithNavigationHook(func(int) {
			mu.Lock()
			navigated++
			mu.Unlock()
		}),
	)

	runner.OnSnapshot(&detect.PageSnapshot{TabID: 1, URL: "https://www.netflix.com/watch/1"})
	runner.OnSnapshot(&detect.PageSnapshot{TabID: 1, URL: "https://www.netflix.com/watch/1"})
	runner.OnSnapshot(&detect.PageSnapshot{TabID: 1, URL: "https://www.netflix.com/watch/2"})

	mu.Lock()
	defer mu.Unlock()
	if navigated != 1 {
		t.Fatalf("navigation hook fired %d times, want 1", navigated)
	}
}

func TestRunnerRedetectWithoutSnapshot(t *testing.T) {
	runner := detect.NewRunner(logging.NewNop(), time.Millisecond)
	if runner.Redetect(99) {
		t.Fatal("redetect with no snapshot should report false")
	}
}
