package scraper

import (
	"context"
	"fmt"
	"strconv"

	"ofdl/internal/downloader"
	"ofdl/pkg/logger"
	"ofdl/pkg/onlyfans"
	"ofdl/pkg/storage"
)

// Options configure one scraper identity
type Options struct {
	Name          string
	DownloadRoot  string
	Template      string
	SkipTemporary bool
	Workers       int
	CacheSize     int
}

// Scraper is one configured account. It owns the API client, the profile
// cache and the download layout for that account, and never changes after
// construction.
type Scraper struct {
	name          string
	api           API
	profiles      *onlyfans.ProfileCache
	storage       *storage.Manager
	template      *Template
	skipTemporary bool
	workers       int
	logger        logger.Logger
}

// New creates a Scraper over api
func New(api API, opts Options, log logger.Logger) (*Scraper, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	tmpl, err := ParseTemplate(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("invalid download template: %w", err)
	}
	storageManager, err := storage.NewManager(opts.DownloadRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = downloader.DefaultWorkers
	}

	return &Scraper{
		name:          opts.Name,
		api:           api,
		profiles:      onlyfans.NewProfileCache(api, opts.CacheSize),
		storage:       storageManager,
		template:      tmpl,
		skipTemporary: opts.SkipTemporary,
		workers:       workers,
		logger:        log.WithField("scraper", opts.Name),
	}, nil
}

// Name returns the identity name
func (s *Scraper) Name() string { return s.name }

// SkipTemporary reports whether expiring content is ignored
func (s *Scraper) SkipTemporary() bool { return s.skipTemporary }

// Profiles exposes the identity's profile cache
func (s *Scraper) Profiles() *onlyfans.ProfileCache { return s.profiles }

// User resolves a profile by id or username through the profile cache.
func (s *Scraper) User(ctx context.Context, idOrName string) (*onlyfans.User, error) {
	return s.profiles.Lookup(ctx, idOrName)
}

func (s *Scraper) userByID(ctx context.Context, id int64) (*onlyfans.User, error) {
	return s.User(ctx, strconv.FormatInt(id, 10))
}

// Subscriptions lists the identity's active subscriptions
func (s *Scraper) Subscriptions(ctx context.Context) ([]onlyfans.User, error) {
	return s.api.Subscriptions(ctx)
}

// Chats lists the users the identity has conversations with
func (s *Scraper) Chats(ctx context.Context) ([]onlyfans.User, error) {
	return s.api.Chats(ctx)
}

// Lookup resolves explicit target names to profiles. It stops at the first
// failure.
func (s *Scraper) Lookup(ctx context.Context, names []string) ([]onlyfans.User, error) {
	users := make([]onlyfans.User, 0, len(names))
	for _, name := range names {
		u, err := s.User(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s: %w", name, err)
		}
		users = append(users, *u)
	}
	return users, nil
}
