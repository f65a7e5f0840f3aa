package scraper

import (
	"context"
	"fmt"

	"ofdl/internal/downloader"
	errs "ofdl/pkg/errors"
	"ofdl/pkg/media"
	"ofdl/pkg/onlyfans"
)

// Targets are the users one pass works on. Messages are fetched for Chats,
// every other collection for Users.
type Targets struct {
	Users []onlyfans.User
	Chats []onlyfans.User
}

// PassStats summarizes one identity pass
type PassStats struct {
	Users         int
	NewMedia      int
	FailedFetches int
	Download      DownloadStats
}

type collector func(ctx context.Context, userID int64) ([]media.NormalizedMedia, error)

type phase struct {
	kind    string
	targets []onlyfans.User
	collect collector
}

// outcome is what one pool task yields, in either phase
type outcome struct {
	user   onlyfans.User
	medias []media.NormalizedMedia
	stats  DownloadStats
}

// accumulator merges per-user media in first-seen user order
type accumulator struct {
	order  []int64
	users  map[int64]onlyfans.User
	medias map[int64][]media.NormalizedMedia
}

func newAccumulator() *accumulator {
	return &accumulator{
		users:  make(map[int64]onlyfans.User),
		medias: make(map[int64][]media.NormalizedMedia),
	}
}

func (a *accumulator) add(u onlyfans.User, ms []media.NormalizedMedia) {
	if _, ok := a.users[u.ID]; !ok {
		a.order = append(a.order, u.ID)
		a.users[u.ID] = u
	}
	a.medias[u.ID] = append(a.medias[u.ID], ms...)
}

func (a *accumulator) total() int {
	n := 0
	for _, ms := range a.medias {
		n += len(ms)
	}
	return n
}

func (s *Scraper) phases(t Targets) []phase {
	ps := []phase{
		{"posts", t.Users, s.PostMedia},
		{"archived posts", t.Users, s.ArchivedPostMedia},
		{"messages", t.Chats, s.MessageMedia},
		{"highlights", t.Users, s.HighlightMedia},
	}
	if !s.skipTemporary {
		ps = append(ps, phase{"stories", t.Users, s.StoryMedia})
	} else {
		s.logger.Debug("skipping temporary items")
	}
	return ps
}

// Pass runs one full fetch-then-download cycle for targets on a pool of
// s.workers. All fetching finishes before any download starts. A failed
// fetch drops only that user's results for that collection.
func (s *Scraper) Pass(ctx context.Context, t Targets) (PassStats, error) {
	pool := downloader.NewWorkerPool[outcome](ctx, s.workers, s.logger)
	pool.Start()
	defer pool.Stop()

	acc := newAccumulator()
	var stats PassStats

	for _, ph := range s.phases(t) {
		s.logger.InfoWithFields("gathering "+ph.kind, map[string]interface{}{"users": len(ph.targets)})

		tasks := make([]downloader.Task[outcome], 0, len(ph.targets))
		for _, u := range ph.targets {
			u, collect := u, ph.collect
			tasks = append(tasks, downloader.Task[outcome]{
				Key: fmt.Sprintf("%s/%s", ph.kind, u.Username),
				Run: func(ctx context.Context) (outcome, error) {
					ms, err := collect(ctx, u.ID)
					return outcome{user: u, medias: ms}, err
				},
			})
		}

		for _, r := range pool.RunAll(tasks) {
			if r.Err != nil {
				stats.FailedFetches++
				s.logger.WithError(r.Err).WithFields(map[string]interface{}{
					"task":   r.Task.Key,
					"status": errs.StatusCode(r.Err),
				}).Error("failed to gather " + ph.kind)
				continue
			}
			acc.add(r.Value.user, r.Value.medias)
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}

	stats.Users = len(acc.order)
	stats.NewMedia = acc.total()
	if stats.NewMedia == 0 {
		s.logger.Info("no new medias found")
		return stats, nil
	}

	tasks := make([]downloader.Task[outcome], 0, len(acc.order))
	for _, id := range acc.order {
		u, ms := acc.users[id], acc.medias[id]
		if len(ms) == 0 {
			continue
		}
		s.logger.InfoWithFields("found new medias", map[string]interface{}{
			"username": u.Username,
			"count":    len(ms),
		})
		tasks = append(tasks, downloader.Task[outcome]{
			Key: "download/" + u.Username,
			Run: func(ctx context.Context) (outcome, error) {
				st, err := s.DownloadAll(ctx, u, ms)
				return outcome{user: u, stats: st}, err
			},
		})
	}

	for _, r := range pool.RunAll(tasks) {
		stats.Download.Add(r.Value.stats)
		if r.Err != nil {
			s.logger.WithError(r.Err).WithField("task", r.Task.Key).Error("download pass failed")
		}
	}
	return stats, ctx.Err()
}
