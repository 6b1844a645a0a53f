package catalog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sauropod/sauropod/internal/events"
	"github.com/sauropod/sauropod/internal/store"
)

func newTestCatalog(t *testing.T, bus *events.Bus) *Catalog {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, bus, nil)
}

func testPodcast() *Podcast {
	return &Podcast{
		ID:       NewID(),
		URL:      "https://example.com/feed.xml",
		Title:    "Test Podcast",
		Image:    "https://example.com/cover.jpg",
		Modified: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSetPodcastEmitsAddThenUpdate(t *testing.T) {
	bus := events.NewBus(nil)
	var added, updated int
	bus.Subscribe(events.PodcastAdd, func(any) { added++ })
	bus.Subscribe(events.PodcastUpdate, func(any) { updated++ })

	c := newTestCatalog(t, bus)
	p := testPodcast()

	if err := c.SetPodcast(p); err != nil {
		t.Fatalf("set error: %v", err)
	}
	p.Title = "Renamed"
	if err := c.SetPodcast(p); err != nil {
		t.Fatalf("update error: %v", err)
	}
	bus.Wait()

	if added != 1 || updated != 1 {
		t.Fatalf("expected 1 add + 1 update, got %d/%d", added, updated)
	}

	got, err := c.Podcast(p.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Title != "Renamed" {
		t.Errorf("title mismatch: %s", got.Title)
	}
}

func TestSetPodcastRejectsInvalid(t *testing.T) {
	c := newTestCatalog(t, nil)
	err := c.SetPodcast(&Podcast{ID: "nope", URL: "https://example.com/feed"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	err = c.SetPodcast(&Podcast{ID: NewID(), URL: "ftp://example.com"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for url, got %v", err)
	}
}

func TestPodcastByURL(t *testing.T) {
	c := newTestCatalog(t, nil)
	p := testPodcast()
	if err := c.SetPodcast(p); err != nil {
		t.Fatalf("set error: %v", err)
	}

	got, err := c.PodcastByURL(p.URL)
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("id mismatch: %s", got.ID)
	}

	if _, err := c.PodcastByURL("https://example.com/other.xml"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEpisodeRoundTripAndDelete(t *testing.T) {
	bus := events.NewBus(nil)
	var deleted int
	bus.Subscribe(events.EpisodeDelete, func(any) { deleted++ })

	c := newTestCatalog(t, bus)
	p := testPodcast()
	if err := c.SetPodcast(p); err != nil {
		t.Fatalf("set podcast: %v", err)
	}

	e := &Episode{
		ID:        NewID(),
		PodcastID: p.ID,
		URL:       "https://example.com/ep1.mp3",
		Title:     "Episode 1",
		Date:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1800,
		Mimetype:  "audio/mpeg",
	}
	if err := c.SetEpisode(e); err != nil {
		t.Fatalf("set episode: %v", err)
	}

	episodes, err := c.Episodes(p.ID)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(episodes) != 1 || episodes[0].ID != e.ID {
		t.Fatalf("unexpected episodes: %+v", episodes)
	}

	if err := c.DeleteEpisode(p.ID, e.ID); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	bus.Wait()
	if deleted != 1 {
		t.Errorf("expected 1 delete event, got %d", deleted)
	}
	if _, err := c.Episode(p.ID, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLatestEpisode(t *testing.T) {
	c := newTestCatalog(t, nil)
	p := testPodcast()
	if err := c.SetPodcast(p); err != nil {
		t.Fatalf("set podcast: %v", err)
	}
	if _, err := c.LatestEpisode(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no episodes, got %v", err)
	}

	e := &Episode{
		ID:        NewID(),
		PodcastID: p.ID,
		URL:       "https://example.com/ep.mp3",
		Title:     "Latest",
		Date:      time.Now().UTC(),
	}
	if err := c.SetEpisode(e); err != nil {
		t.Fatalf("set episode: %v", err)
	}
	p.LatestID = e.ID
	if err := c.SetPodcast(p); err != nil {
		t.Fatalf("update podcast: %v", err)
	}

	got, err := c.LatestEpisode(p.ID)
	if err != nil {
		t.Fatalf("latest error: %v", err)
	}
	if got.Title != "Latest" {
		t.Errorf("title mismatch: %s", got.Title)
	}
}

func TestEpisodesByPage(t *testing.T) {
	c := newTestCatalog(t, nil)
	p := testPodcast()
	if err := c.SetPodcast(p); err != nil {
		t.Fatalf("set podcast: %v", err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := &Episode{
			ID:        NewID(),
			PodcastID: p.ID,
			URL:       "https://example.com/ep.mp3",
			Title:     "Episode",
			Date:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := c.SetEpisode(e); err != nil {
			t.Fatalf("set episode: %v", err)
		}
	}

	page0, err := c.EpisodesByPage(p.ID, 2, 0)
	if err != nil {
		t.Fatalf("page error: %v", err)
	}
	if len(page0) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(page0))
	}
	// Newest first.
	if !page0[0].Date.After(page0[1].Date) {
		t.Error("expected newest-first ordering")
	}

	page2, err := c.EpisodesByPage(p.ID, 2, 2)
	if err != nil {
		t.Fatalf("page error: %v", err)
	}
	if len(page2) != 1 {
		t.Errorf("expected 1 episode on last page, got %d", len(page2))
	}
	empty, err := c.EpisodesByPage(p.ID, 2, 9)
	if err != nil {
		t.Fatalf("page error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %d", len(empty))
	}
}

func TestBookmarkRoundTrip(t *testing.T) {
	c := newTestCatalog(t, nil)
	b := &Bookmark{
		PodcastID: NewID(),
		EpisodeID: NewID(),
		Position:  123.5,
		Date:      time.Now().UTC(),
	}
	if err := c.SetBookmark(b); err != nil {
		t.Fatalf("set error: %v", err)
	}
	got, err := c.Bookmark(b.PodcastID, b.EpisodeID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Position != 123.5 {
		t.Errorf("position mismatch: %f", got.Position)
	}
	if err := c.DeleteBookmark(b.PodcastID, b.EpisodeID); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if _, err := c.Bookmark(b.PodcastID, b.EpisodeID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
