package runner

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ofdl/internal/fakeapi"
	"ofdl/pkg/auth"
	"ofdl/pkg/config"
	"ofdl/pkg/logger"
	"ofdl/pkg/onlyfans"
)

var creator = onlyfans.User{ID: 42, Username: "creator"}

func newServer(t *testing.T) *fakeapi.Server {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	srv.Edit(func(d *fakeapi.Data) {
		d.Users[creator.ID] = creator
		d.Files["p1"] = fakeapi.File{Body: []byte("post")}
		d.Files["m1"] = fakeapi.File{Body: []byte("message")}
		d.Posts[creator.ID] = onlyfans.Posts{{
			ID:       1,
			PostedAt: onlyfans.Time{Time: time.Unix(1000, 0).UTC()},
			Author:   onlyfans.Some(creator),
			Media: []onlyfans.Media{{
				ID: 11, Type: "photo", CanView: true,
				Source: onlyfans.MediaSource{Source: onlyfans.Some(srv.FileURL("p1"))},
			}},
		}}
		d.Messages[creator.ID] = []onlyfans.Message{{
			ID:        2,
			FromUser:  onlyfans.User{ID: creator.ID},
			CreatedAt: onlyfans.Time{Time: time.Unix(2000, 0).UTC()},
			Media: []onlyfans.MessageMedia{{
				ID: 21, Type: "photo", CanView: true, Src: onlyfans.Some(srv.FileURL("m1")),
			}},
		}}
	})
	return srv
}

func identity(t *testing.T, srv *fakeapi.Server) *config.ScraperConfig {
	t.Helper()
	return &config.ScraperConfig{
		Cookie:           "sess=configured",
		UserAgent:        "test-agent",
		XBC:              config.GenerateXBC(),
		Rules:            srv.RulesURL(),
		DownloadRoot:     t.TempDir(),
		DownloadTemplate: "{media_id}.{extension}",
	}
}

func testConfig(scrapers map[string]*config.ScraperConfig) *config.Config {
	cfg := config.DefaultConfig()
	cfg.HTTP.MaxRetries = 0
	cfg.HTTP.Backoff = time.Millisecond
	cfg.Run.Interval = 10 * time.Millisecond
	cfg.Scrapers = scrapers
	return cfg
}

func placed(root string, parts ...string) bool {
	_, err := os.Stat(filepath.Join(append([]string{root, "creator"}, parts...)...))
	return err == nil
}

func TestRunExplicitUsernames(t *testing.T) {
	srv := newServer(t)
	sc := identity(t, srv)
	r := New(testConfig(map[string]*config.ScraperConfig{"main": sc}), logger.NewTestLogger(), WithBaseURL(srv.URL))

	err := r.Run(context.Background(), Options{Usernames: []string{"creator"}})
	require.NoError(t, err)

	assert.True(t, placed(sc.DownloadRoot, "posts", "photos", "11.jpg"))
	// explicit users are also the chat targets
	assert.True(t, placed(sc.DownloadRoot, "messages", "photos", "21.jpg"))
	assert.Equal(t, 0, srv.Hits("/api2/v2/subscriptions/subscribes"))
	assert.Equal(t, 0, srv.Hits("/api2/v2/chats"))
}

func TestRunDiscovery(t *testing.T) {
	srv := newServer(t)
	srv.Edit(func(d *fakeapi.Data) {
		d.Subscriptions = []int64{creator.ID}
		d.Chats = []int64{creator.ID}
	})
	sc := identity(t, srv)
	log := logger.NewTestLogger()
	r := New(testConfig(map[string]*config.ScraperConfig{"main": sc}), log, WithBaseURL(srv.URL))

	require.NoError(t, r.Run(context.Background(), Options{}))

	assert.True(t, placed(sc.DownloadRoot, "posts", "photos", "11.jpg"))
	assert.True(t, placed(sc.DownloadRoot, "messages", "photos", "21.jpg"))
	assert.Equal(t, 1, srv.Hits("/api2/v2/users/list"))
	assert.True(t, log.HasMessage("found subscriptions"))
	assert.True(t, log.HasMessage("pass complete"))

	header := srv.LastHeader("/api2/v2/subscriptions/subscribes")
	assert.Equal(t, "sess=configured", header.Get("Cookie"))
	assert.Equal(t, sc.XBC, header.Get("X-Bc"))
	assert.NotEmpty(t, header.Get("Sign"))
}

func TestRunDiscoveryFailureIsLogged(t *testing.T) {
	srv := newServer(t)
	srv.Edit(func(d *fakeapi.Data) {
		d.Fail["/api2/v2/subscriptions/subscribes"] = http.StatusUnauthorized
	})
	log := logger.NewTestLogger()
	r := New(testConfig(map[string]*config.ScraperConfig{"main": identity(t, srv)}), log, WithBaseURL(srv.URL))

	require.NoError(t, r.Run(context.Background(), Options{}))

	var found bool
	for _, msg := range log.GetMessagesByLevel("ERROR") {
		if msg.Message == "scraper pass failed" {
			found = true
			assert.Equal(t, "main", msg.Fields["scraper"])
			assert.Equal(t, http.StatusUnauthorized, msg.Fields["status"])
		}
	}
	assert.True(t, found)
	assert.Equal(t, 0, srv.Hits("/api2/v2/chats"))
}

func TestRunSkipsMisconfiguredScraper(t *testing.T) {
	srv := newServer(t)
	bad := identity(t, srv)
	bad.Cookie = ""
	good := identity(t, srv)
	log := logger.NewTestLogger()
	r := New(testConfig(map[string]*config.ScraperConfig{"bad": bad, "good": good}), log, WithBaseURL(srv.URL))

	require.NoError(t, r.Run(context.Background(), Options{Usernames: []string{"creator"}}))

	assert.True(t, log.HasMessage("failed to set up scraper"))
	assert.True(t, placed(good.DownloadRoot, "posts", "photos", "11.jpg"))
	assert.False(t, placed(bad.DownloadRoot, "posts", "photos", "11.jpg"))
}

func TestRunFetchesRulesOncePerURL(t *testing.T) {
	srv := newServer(t)
	r := New(testConfig(map[string]*config.ScraperConfig{
		"a": identity(t, srv),
		"b": identity(t, srv),
	}), logger.NewNopLogger(), WithBaseURL(srv.URL))

	require.NoError(t, r.Run(context.Background(), Options{Usernames: []string{"creator"}}))
	require.NoError(t, r.Run(context.Background(), Options{Usernames: []string{"creator"}}))
	assert.Equal(t, 1, srv.Hits(fakeapi.RulesPath))
}

func TestRunUsesStoredCredentials(t *testing.T) {
	srv := newServer(t)
	sc := identity(t, srv)
	sc.Cookie = ""
	sc.UserAgent = ""

	creds, _ := auth.NewMockManager()
	require.NoError(t, creds.Store(&auth.Credentials{Scraper: "main", Cookie: "sess=stored", UserAgent: "stored-agent"}))

	r := New(testConfig(map[string]*config.ScraperConfig{"main": sc}), logger.NewNopLogger(),
		WithBaseURL(srv.URL), WithCredentials(creds))
	require.NoError(t, r.Run(context.Background(), Options{Usernames: []string{"creator"}}))

	header := srv.LastHeader("/api2/v2/users/creator")
	assert.Equal(t, "sess=stored", header.Get("Cookie"))
	assert.Equal(t, "stored-agent", header.Get("User-Agent"))
	assert.Equal(t, sc.XBC, header.Get("X-Bc"))
}

func TestRunStoredCookieBringsItsXBC(t *testing.T) {
	srv := newServer(t)
	sc := identity(t, srv)
	sc.Cookie = ""

	creds, _ := auth.NewMockManager()
	stored := strings.Repeat("s", 40)
	require.NoError(t, creds.Store(&auth.Credentials{Scraper: "main", Cookie: "sess=stored", XBC: stored}))

	r := New(testConfig(map[string]*config.ScraperConfig{"main": sc}), logger.NewNopLogger(),
		WithBaseURL(srv.URL), WithCredentials(creds))
	require.NoError(t, r.Run(context.Background(), Options{Usernames: []string{"creator"}}))

	header := srv.LastHeader("/api2/v2/users/creator")
	assert.Equal(t, stored, header.Get("X-Bc"))
	assert.Equal(t, sc.UserAgent, header.Get("User-Agent"))
}

func TestRunConfiguredCookieIgnoresStore(t *testing.T) {
	srv := newServer(t)
	sc := identity(t, srv)

	creds, _ := auth.NewMockManager()
	require.NoError(t, creds.Store(&auth.Credentials{Scraper: "main", Cookie: "sess=stored", XBC: strings.Repeat("s", 40)}))

	r := New(testConfig(map[string]*config.ScraperConfig{"main": sc}), logger.NewNopLogger(),
		WithBaseURL(srv.URL), WithCredentials(creds))
	require.NoError(t, r.Run(context.Background(), Options{Usernames: []string{"creator"}}))

	header := srv.LastHeader("/api2/v2/users/creator")
	assert.Equal(t, sc.Cookie, header.Get("Cookie"))
	assert.Equal(t, sc.XBC, header.Get("X-Bc"))
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	srv := newServer(t)
	srv.Edit(func(d *fakeapi.Data) { d.Subscriptions = []int64{creator.ID} })
	r := New(testConfig(map[string]*config.ScraperConfig{"main": identity(t, srv)}), logger.NewNopLogger(), WithBaseURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := r.Run(ctx, Options{Forever: true})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, srv.Hits("/api2/v2/subscriptions/subscribes"), 2)
}

func TestRunWithoutScrapers(t *testing.T) {
	r := New(testConfig(map[string]*config.ScraperConfig{}), logger.NewNopLogger())
	assert.Error(t, r.Run(context.Background(), Options{}))
}

func TestHTTPClientRejectsBadProxy(t *testing.T) {
	r := New(testConfig(nil), logger.NewNopLogger())

	_, err := r.httpClient(&config.ScraperConfig{Proxy: "::not a url"}, logger.NewNopLogger())
	assert.Error(t, err)

	client, err := r.httpClient(&config.ScraperConfig{Proxy: "http://127.0.0.1:8080"}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.NotNil(t, client.Transport)
}
