package scraper

import (
	"context"
	"fmt"
	"slices"
	"time"

	"ofdl/pkg/ledger"
	"ofdl/pkg/media"
	"ofdl/pkg/onlyfans"
)

// page is one fetched page of records. next is the offset of the following
// page; done ends the walk after this page.
type page struct {
	records []onlyfans.Record
	next    int
	done    bool
}

type pageFunc func(ctx context.Context, offset int) (page, error)

// newer reports whether r is strictly after the high-water mark. Both
// sides compare at second precision, the resolution the ledger stores.
func newer(r onlyfans.Record, mark time.Time) bool {
	return r.Timestamp().Unix() > mark.Unix()
}

// walk collects media from a newest-first page sequence until the first
// record at or before mark. Records rejected by accept, or without viewable
// media, are skipped without ending the walk.
func walk(ctx context.Context, mark time.Time, fetch pageFunc, accept func(onlyfans.Record) bool, normalize func(onlyfans.Record) []media.NormalizedMedia) ([]media.NormalizedMedia, error) {
	var out []media.NormalizedMedia
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := fetch(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range p.records {
			if !newer(r, mark) {
				return out, nil
			}
			if accept != nil && !accept(r) {
				continue
			}
			if !onlyfans.HasViewable(r) {
				continue
			}
			out = append(out, normalize(r)...)
		}
		if p.done {
			return out, nil
		}
		offset = p.next
	}
}

// walkAscending applies the high-water mark to an oldest-first list by
// reversing it first.
func walkAscending(stories onlyfans.Stories, mark time.Time, normalize func(*onlyfans.Story) []media.NormalizedMedia) []media.NormalizedMedia {
	var out []media.NormalizedMedia
	for _, s := range slices.Backward(stories) {
		if !newer(&s, mark) {
			break
		}
		out = append(out, normalize(&s)...)
	}
	return out
}

func (s *Scraper) mark(ctx context.Context, user *onlyfans.User, st media.SourceType) time.Time {
	return ledger.HighWaterMark(ctx, s.storage.Root(), user.Username, st, s.logger)
}

func postRecords(ps onlyfans.Posts) []onlyfans.Record {
	out := make([]onlyfans.Record, len(ps))
	for i := range ps {
		out[i] = &ps[i]
	}
	return out
}

// PostMedia returns media from posts newer than the user's posts mark.
func (s *Scraper) PostMedia(ctx context.Context, userID int64) ([]media.NormalizedMedia, error) {
	return s.postMedia(ctx, userID, media.SourceTypePosts, s.api.Posts, media.NormalizePost)
}

// ArchivedPostMedia returns media from archived posts newer than the
// user's archived mark.
func (s *Scraper) ArchivedPostMedia(ctx context.Context, userID int64) ([]media.NormalizedMedia, error) {
	return s.postMedia(ctx, userID, media.SourceTypeArchived, s.api.ArchivedPosts, media.NormalizeArchivedPost)
}

func (s *Scraper) postMedia(
	ctx context.Context,
	userID int64,
	st media.SourceType,
	list func(context.Context, int64, int) (onlyfans.Posts, error),
	normalize func(*onlyfans.Post, media.Options) []media.NormalizedMedia,
) ([]media.NormalizedMedia, error) {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	opts := media.Options{SkipTemporary: s.skipTemporary, FallbackUserID: user.ID}

	out, err := walk(ctx, s.mark(ctx, user, st),
		func(ctx context.Context, offset int) (page, error) {
			ps, err := list(ctx, userID, offset)
			if err != nil {
				return page{}, err
			}
			// an empty page is the end; a short page is not
			return page{records: postRecords(ps), next: offset + onlyfans.PageSize, done: len(ps) == 0}, nil
		},
		nil,
		func(r onlyfans.Record) []media.NormalizedMedia { return normalize(r.(*onlyfans.Post), opts) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s for %s: %w", st, user.Username, err)
	}
	s.logger.DebugWithFields("collected media", map[string]interface{}{
		"username":    user.Username,
		"source_type": string(st),
		"count":       len(out),
	})
	return out, nil
}

// MessageMedia returns media the user sent in their conversation with the
// identity, newer than the user's messages mark. Messages sent by the
// identity itself are ignored.
func (s *Scraper) MessageMedia(ctx context.Context, userID int64) ([]media.NormalizedMedia, error) {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	opts := media.Options{FallbackUserID: user.ID}

	out, err := walk(ctx, s.mark(ctx, user, media.SourceTypeMessages),
		func(ctx context.Context, offset int) (page, error) {
			ms, err := s.api.Messages(ctx, userID, offset)
			if err != nil {
				return page{}, err
			}
			records := make([]onlyfans.Record, len(ms.List))
			for i := range ms.List {
				records[i] = &ms.List[i]
			}
			return page{
				records: records,
				next:    offset + len(ms.List),
				done:    !ms.HasMore || len(ms.List) == 0,
			}, nil
		},
		func(r onlyfans.Record) bool {
			from, _ := r.Owner()
			return from == userID
		},
		func(r onlyfans.Record) []media.NormalizedMedia { return media.NormalizeMessage(r.(*onlyfans.Message), opts) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages for %s: %w", user.Username, err)
	}
	return out, nil
}

// HighlightMedia returns media from every highlight category newer than
// the user's highlights mark. Each category is cut off on its own.
func (s *Scraper) HighlightMedia(ctx context.Context, userID int64) ([]media.NormalizedMedia, error) {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	mark := s.mark(ctx, user, media.SourceTypeHighlights)
	opts := media.Options{FallbackUserID: user.ID}

	var categories onlyfans.HighlightCategories
	for offset := 0; ; offset += onlyfans.HighlightPageSize {
		hc, err := s.api.HighlightCategories(ctx, userID, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list highlights for %s: %w", user.Username, err)
		}
		if len(hc) == 0 {
			break
		}
		categories = append(categories, hc...)
	}

	var out []media.NormalizedMedia
	for _, category := range categories {
		h, err := s.api.Highlight(ctx, category.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch highlight %d for %s: %w", category.ID, user.Username, err)
		}
		title := category.Title
		out = append(out, walkAscending(h.Stories, mark, func(st *onlyfans.Story) []media.NormalizedMedia {
			return media.NormalizeHighlight(st, title, opts)
		})...)
	}
	return out, nil
}

// StoryMedia returns media from current stories newer than the user's
// stories mark.
func (s *Scraper) StoryMedia(ctx context.Context, userID int64) ([]media.NormalizedMedia, error) {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stories, err := s.api.Stories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stories for %s: %w", user.Username, err)
	}
	opts := media.Options{FallbackUserID: user.ID}
	return walkAscending(stories, s.mark(ctx, user, media.SourceTypeStories), func(st *onlyfans.Story) []media.NormalizedMedia {
		return media.NormalizeStory(st, opts)
	}), nil
}
