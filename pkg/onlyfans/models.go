package onlyfans

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Maybe is an upstream field that may be absent. JSON null and a missing
// key both decode to the empty Maybe.
type Maybe[T any] struct {
	Value T
	Valid bool
}

// Some wraps a present value
func Some[T any](v T) Maybe[T] {
	return Maybe[T]{Value: v, Valid: true}
}

// Get returns the value and whether it was present.
func (m Maybe[T]) Get() (T, bool) {
	return m.Value, m.Valid
}

// Or returns the value, or def when absent.
func (m Maybe[T]) Or(def T) T {
	if m.Valid {
		return m.Value
	}
	return def
}

func (m *Maybe[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Maybe[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Some(v)
	return nil
}

func (m Maybe[T]) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// Time is an RFC 3339 timestamp. Decoding anything else is an error.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// IDList is a list of media ids that upstream encodes as numbers or
// numeric strings. Non-numeric entries are dropped.
type IDList []int64

func (l *IDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(IDList, 0, len(raw))
	for _, r := range raw {
		var n int64
		if err := json.Unmarshal(r, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				out = append(out, n)
			}
		}
	}
	*l = out
	return nil
}

// Contains reports whether id is in the list
func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

var errMissing = errors.New("missing required field")

func required(field string, ok bool) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w %q", errMissing, field)
}

// fields is a JSON object split into its raw members, used to tell an
// absent key from a zero value.
type fields map[string]json.RawMessage

func objectFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// present requires every key to be in the object; null is accepted.
func (f fields) present(keys ...string) error {
	var errs []error
	for _, k := range keys {
		_, ok := f[k]
		errs = append(errs, required(k, ok))
	}
	return errors.Join(errs...)
}

// values requires every key to be in the object with a non-null value.
func (f fields) values(keys ...string) error {
	var errs []error
	for _, k := range keys {
		v, ok := f[k]
		errs = append(errs, required(k, ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))))
	}
	return errors.Join(errs...)
}

// decodeStrict checks data against the required keys and then decodes it
// into v, which must not itself implement json.Unmarshaler.
func decodeStrict(data []byte, v any, nullable []string, keys ...string) error {
	f, err := objectFields(data)
	if err != nil {
		return err
	}
	if err := errors.Join(f.values(keys...), f.present(nullable...)); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// User is a profile. Two users are the same user when their IDs match.
type User struct {
	ID       int64         `json:"id"`
	Username string        `json:"username"`
	Name     Maybe[string] `json:"name"`
	Avatar   Maybe[string] `json:"avatar"`
	Header   Maybe[string] `json:"header"`
}

// Validate requires the fields every profile lookup returns.
func (u *User) Validate() error {
	return errors.Join(required("id", u.ID != 0), required("username", u.Username != ""))
}

// MediaSource locates the bytes of one media item. Source is null for
// media the viewer cannot open.
type MediaSource struct {
	Source   Maybe[string] `json:"source"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Duration int           `json:"duration"`
}

func (s *MediaSource) UnmarshalJSON(data []byte) error {
	type plain MediaSource
	return decodeStrict(data, (*plain)(s), []string{"source"}, "width", "height", "duration")
}

// Media is a media item embedded in a post or story.
type Media struct {
	ID      int64       `json:"id"`
	Type    string      `json:"type"`
	CanView bool        `json:"canView"`
	Source  MediaSource `json:"source"`
}

func (m *Media) UnmarshalJSON(data []byte) error {
	type plain Media
	if err := decodeStrict(data, (*plain)(m), nil, "id", "type", "canView", "source"); err != nil {
		return fmt.Errorf("media: %w", err)
	}
	return nil
}

func (m Media) raw() RawMedia {
	return RawMedia{
		ID:       m.ID,
		Type:     m.Type,
		CanView:  m.CanView,
		URL:      m.Source.Source,
		Width:    m.Source.Width,
		Height:   m.Source.Height,
		Duration: m.Source.Duration,
	}
}

// Post is a feed or archived post. A reported post comes back without
// author, text, price and media, so those stay optional.
type Post struct {
	ID        int64          `json:"id"`
	PostedAt  Time           `json:"postedAt"`
	ExpiredAt Maybe[string]  `json:"expiredAt"`
	Author    Maybe[User]    `json:"author"`
	RawText   Maybe[string]  `json:"rawText"`
	Price     Maybe[float64] `json:"price"`
	Media     []Media        `json:"media"`
	Preview   IDList         `json:"preview"`
}

func (p *Post) Validate() error {
	return errors.Join(required("id", p.ID != 0), required("postedAt", !p.PostedAt.IsZero()))
}

// Posts is one page of posts
type Posts []Post

func (ps Posts) Validate() error {
	for i := range ps {
		if err := ps[i].Validate(); err != nil {
			return fmt.Errorf("post %d: %w", i, err)
		}
	}
	return nil
}

// MediaSize is the pixel size of a message attachment.
type MediaSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *MediaSize) UnmarshalJSON(data []byte) error {
	type plain MediaSize
	return decodeStrict(data, (*plain)(s), nil, "width", "height")
}

// MediaInfo wraps the size of a message attachment.
type MediaInfo struct {
	Source MediaSize `json:"source"`
}

func (i *MediaInfo) UnmarshalJSON(data []byte) error {
	type plain MediaInfo
	return decodeStrict(data, (*plain)(i), nil, "source")
}

// MessageMedia is a media item attached to a chat message.
type MessageMedia struct {
	ID       int64         `json:"id"`
	CanView  bool          `json:"canView"`
	Type     string        `json:"type"`
	Src      Maybe[string] `json:"src"`
	Duration int           `json:"duration"`
	Info     MediaInfo     `json:"info"`
}

func (m *MessageMedia) UnmarshalJSON(data []byte) error {
	type plain MessageMedia
	if err := decodeStrict(data, (*plain)(m), []string{"src"}, "id", "canView", "type", "duration", "info"); err != nil {
		return fmt.Errorf("message media: %w", err)
	}
	return nil
}

// Message is a chat message.
type Message struct {
	ID        int64          `json:"id"`
	Text      Maybe[string]  `json:"text"`
	Price     float64        `json:"price"`
	Media     []MessageMedia `json:"media"`
	Previews  IDList         `json:"previews"`
	FromUser  User           `json:"fromUser"`
	CreatedAt Time           `json:"createdAt"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	return decodeStrict(data, (*plain)(m), []string{"text", "media", "previews"},
		"id", "price", "fromUser", "createdAt")
}

func (m *Message) Validate() error {
	return errors.Join(
		required("id", m.ID != 0),
		required("createdAt", !m.CreatedAt.IsZero()),
		required("fromUser.id", m.FromUser.ID != 0),
	)
}

// Question is the prompt a story may carry.
type Question struct {
	Entity struct {
		Text string `json:"text"`
	} `json:"entity"`
}

// Story is a story or a story inside a highlight.
type Story struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	CreatedAt Time            `json:"createdAt"`
	Media     []Media         `json:"media"`
	Question  Maybe[Question] `json:"question"`
}

func (s *Story) UnmarshalJSON(data []byte) error {
	type plain Story
	return decodeStrict(data, (*plain)(s), []string{"media", "question"}, "id", "userId", "createdAt")
}

func (s *Story) Validate() error {
	return errors.Join(required("id", s.ID != 0), required("createdAt", !s.CreatedAt.IsZero()))
}

// Stories is a user's story list, oldest first.
type Stories []Story

func (ss Stories) Validate() error {
	for i := range ss {
		if err := ss[i].Validate(); err != nil {
			return fmt.Errorf("story %d: %w", i, err)
		}
	}
	return nil
}

// HighlightCategory is a titled collection of stories.
type HighlightCategory struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Title     string `json:"title"`
	Cover     string `json:"cover"`
	CreatedAt Time   `json:"createdAt"`
}

var categoryKeys = []string{"id", "userId", "title", "cover", "createdAt"}

func (c *HighlightCategory) UnmarshalJSON(data []byte) error {
	type plain HighlightCategory
	return decodeStrict(data, (*plain)(c), nil, categoryKeys...)
}

// HighlightCategories is one page of categories.
type HighlightCategories []HighlightCategory

func (hc HighlightCategories) Validate() error {
	for i := range hc {
		if hc[i].ID == 0 {
			return fmt.Errorf("category %d: %w", i, required("id", false))
		}
	}
	return nil
}

// Highlight is a category together with its stories, oldest first.
type Highlight struct {
	HighlightCategory
	Stories Stories `json:"stories"`
}

// UnmarshalJSON decodes the embedded category and the stories separately,
// since the category's own decoder would otherwise be promoted and drop
// the stories.
func (h *Highlight) UnmarshalJSON(data []byte) error {
	f, err := objectFields(data)
	if err != nil {
		return err
	}
	if err := f.present("stories"); err != nil {
		return err
	}
	if err := h.HighlightCategory.UnmarshalJSON(data); err != nil {
		return err
	}
	h.Stories = nil
	return json.Unmarshal(f["stories"], &h.Stories)
}

func (h *Highlight) Validate() error {
	if err := required("id", h.ID != 0); err != nil {
		return err
	}
	return h.Stories.Validate()
}

// Page is an offset-paginated list.
type Page[T any] struct {
	List    []T  `json:"list"`
	HasMore bool `json:"hasMore"`
}

// CursorPage is a list paginated by an explicit next offset.
type CursorPage[T any] struct {
	List       []T  `json:"list"`
	HasMore    bool `json:"hasMore"`
	NextOffset int  `json:"nextOffset"`
}

// Chat is one conversation in the chat list.
type Chat struct {
	WithUser User `json:"withUser"`
}

// Messages is one page of a conversation, newest first.
type Messages Page[Message]

func (ms *Messages) Validate() error {
	for i := range ms.List {
		if err := ms.List[i].Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}
