package onlyfans

import "time"

// RawMedia is an embedded media item in its source-independent shape.
type RawMedia struct {
	ID       int64
	Type     string
	CanView  bool
	URL      Maybe[string]
	Width    int
	Height   int
	Duration int
}

// Record is any upstream item that carries media.
type Record interface {
	// ID is the post, message or story id.
	RecordID() int64
	Timestamp() time.Time
	// Owner is the author's user id, absent on moderated posts.
	Owner() (int64, bool)
	Items() []RawMedia
}

// HasViewable reports whether r has at least one media item the viewer can
// access.
func HasViewable(r Record) bool {
	for _, m := range r.Items() {
		if m.CanView {
			return true
		}
	}
	return false
}

func (p *Post) RecordID() int64      { return p.ID }
func (p *Post) Timestamp() time.Time { return p.PostedAt.Time }

func (p *Post) Owner() (int64, bool) {
	if a, ok := p.Author.Get(); ok && a.ID != 0 {
		return a.ID, true
	}
	return 0, false
}

func (p *Post) Items() []RawMedia {
	out := make([]RawMedia, len(p.Media))
	for i, m := range p.Media {
		out[i] = m.raw()
	}
	return out
}

func (m *Message) RecordID() int64      { return m.ID }
func (m *Message) Timestamp() time.Time { return m.CreatedAt.Time }
func (m *Message) Owner() (int64, bool) { return m.FromUser.ID, m.FromUser.ID != 0 }

func (m *Message) Items() []RawMedia {
	out := make([]RawMedia, len(m.Media))
	for i, mm := range m.Media {
		out[i] = RawMedia{
			ID:       mm.ID,
			Type:     mm.Type,
			CanView:  mm.CanView,
			URL:      mm.Src,
			Width:    mm.Info.Source.Width,
			Height:   mm.Info.Source.Height,
			Duration: mm.Duration,
		}
	}
	return out
}

func (s *Story) RecordID() int64      { return s.ID }
func (s *Story) Timestamp() time.Time { return s.CreatedAt.Time }
func (s *Story) Owner() (int64, bool) { return s.UserID, s.UserID != 0 }

func (s *Story) Items() []RawMedia {
	out := make([]RawMedia, len(s.Media))
	for i, m := range s.Media {
		out[i] = m.raw()
	}
	return out
}
