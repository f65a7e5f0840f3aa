package media

import (
	"ofdl/pkg/onlyfans"
)

// Options tune normalization
type Options struct {
	// SkipTemporary drops posts that carry an expiry
	SkipTemporary bool
	// FallbackUserID is used as the owner when a record has no author,
	// which happens on moderated posts.
	FallbackUserID int64
}

func owner(r onlyfans.Record, opts Options) int64 {
	if id, ok := r.Owner(); ok {
		return id
	}
	return opts.FallbackUserID
}

// build emits one NormalizedMedia per viewable item of r. value decides
// each item's tag.
func build(r onlyfans.Record, st SourceType, text string, opts Options, value func(onlyfans.RawMedia) Value) []NormalizedMedia {
	var out []NormalizedMedia
	for _, item := range r.Items() {
		if !item.CanView {
			continue
		}
		out = append(out, NormalizedMedia{
			UserID:     owner(r, opts),
			SourceType: st,
			SourceID:   r.RecordID(),
			ID:         item.ID,
			FileType:   FileType(item.Type),
			CreatedAt:  r.Timestamp(),
			Text:       text,
			Width:      item.Width,
			Height:     item.Height,
			Duration:   item.Duration,
			URL:        item.URL.Or(""),
			Value:      value(item),
		})
	}
	return out
}

func postDropped(p *onlyfans.Post, opts Options) bool {
	return len(p.Media) == 0 || (p.ExpiredAt.Valid && opts.SkipTemporary)
}

func paidIf(price onlyfans.Maybe[float64], previews onlyfans.IDList) func(onlyfans.RawMedia) Value {
	return func(item onlyfans.RawMedia) Value {
		if price.Or(0) != 0 && !previews.Contains(item.ID) {
			return ValuePaid
		}
		return ValueFree
	}
}

// NormalizePost normalizes a feed post. Any nonzero price makes every item
// paid.
func NormalizePost(p *onlyfans.Post, opts Options) []NormalizedMedia {
	if postDropped(p, opts) {
		return nil
	}
	out := build(p, SourceTypePosts, p.RawText.Or(""), opts, paidIf(p.Price, nil))
	return withExpiry(out, p.ExpiredAt)
}

// NormalizeArchivedPost normalizes an archived post. Items listed as
// previews stay free on a priced post.
func NormalizeArchivedPost(p *onlyfans.Post, opts Options) []NormalizedMedia {
	if postDropped(p, opts) {
		return nil
	}
	out := build(p, SourceTypeArchived, p.RawText.Or(""), opts, paidIf(p.Price, p.Preview))
	return withExpiry(out, p.ExpiredAt)
}

func withExpiry(ms []NormalizedMedia, exp onlyfans.Maybe[string]) []NormalizedMedia {
	for i := range ms {
		ms[i].ExpiredAt = exp
	}
	return ms
}

// NormalizeMessage normalizes a chat message.
func NormalizeMessage(m *onlyfans.Message, opts Options) []NormalizedMedia {
	return build(m, SourceTypeMessages, m.Text.Or(""), opts, paidIf(onlyfans.Some(m.Price), m.Previews))
}

// NormalizeStory normalizes a story. Its caption is the question text.
func NormalizeStory(s *onlyfans.Story, opts Options) []NormalizedMedia {
	text := ""
	if q, ok := s.Question.Get(); ok {
		text = q.Entity.Text
	}
	return build(s, SourceTypeStories, text, opts, free)
}

// NormalizeHighlight normalizes a story within a highlight category. The
// caption is the category title, suffixed with the question when present.
func NormalizeHighlight(s *onlyfans.Story, category string, opts Options) []NormalizedMedia {
	text := category
	if q, ok := s.Question.Get(); ok {
		text = category + "." + q.Entity.Text
	}
	out := build(s, SourceTypeHighlights, text, opts, free)
	for i := range out {
		out[i].HighlightCategory = onlyfans.Some(category)
	}
	return out
}

func free(onlyfans.RawMedia) Value { return ValueFree }
