// Package media turns upstream records into a flat list of downloadable
// items. Normalizers are pure: they never perform I/O.
package media

import (
	"time"

	"ofdl/pkg/onlyfans"
)

// SourceType names the collection a media item came from. It is also the
// first directory level under a user's download directory.
type SourceType string

const (
	SourceTypePosts      SourceType = "posts"
	SourceTypeArchived   SourceType = "archived"
	SourceTypeMessages   SourceType = "messages"
	SourceTypeStories    SourceType = "stories"
	SourceTypeHighlights SourceType = "highlights"

	// Synthetic ledger namespaces for profile images
	SourceTypeAvatar SourceType = "avatar"
	SourceTypeHeader SourceType = "header"
)

// FileType is the upstream media kind
type FileType string

const (
	FileTypePhoto FileType = "photo"
	FileTypeVideo FileType = "video"
	FileTypeAudio FileType = "audio"
	FileTypeGIF   FileType = "gif"
)

// Extension maps a file type to its on-disk extension. ok is false for
// kinds nothing can be stored as.
func (f FileType) Extension() (ext string, ok bool) {
	switch f {
	case FileTypePhoto:
		return "jpg", true
	case FileTypeVideo, FileTypeGIF:
		return "mp4", true
	case FileTypeAudio:
		return "mp3", true
	default:
		return "", false
	}
}

// Value tags whether an item was bought or came with the subscription.
type Value string

const (
	ValueFree Value = "free"
	ValuePaid Value = "paid"
)

// NormalizedMedia is one downloadable item. (SourceType, SourceID, ID) is
// its identity in the ledger.
type NormalizedMedia struct {
	UserID     int64
	SourceType SourceType
	SourceID   int64
	ID         int64
	FileType   FileType
	CreatedAt  time.Time
	Text       string
	Width      int
	Height     int
	Duration   int
	URL        string
	ExpiredAt  onlyfans.Maybe[string]
	Value      Value

	// HighlightCategory is the category title for highlight items
	HighlightCategory onlyfans.Maybe[string]
}

// Key returns the ledger identity of m
func (m NormalizedMedia) Key() Key {
	return Key{SourceType: m.SourceType, SourceID: m.SourceID, MediaID: m.ID}
}

// Key identifies a media item across runs.
type Key struct {
	SourceType SourceType
	SourceID   int64
	MediaID    int64
}
