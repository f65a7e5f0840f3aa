package scraper

import (
	"context"
	"net/http"

	"ofdl/pkg/onlyfans"
)

// API defines the upstream operations the scraper needs. *onlyfans.Client
// implements it.
type API interface {
	User(ctx context.Context, idOrName string) (*onlyfans.User, error)
	Subscriptions(ctx context.Context) ([]onlyfans.User, error)
	Chats(ctx context.Context) ([]onlyfans.User, error)
	Posts(ctx context.Context, userID int64, offset int) (onlyfans.Posts, error)
	ArchivedPosts(ctx context.Context, userID int64, offset int) (onlyfans.Posts, error)
	Messages(ctx context.Context, userID int64, offset int) (*onlyfans.Messages, error)
	HighlightCategories(ctx context.Context, userID int64, offset int) (onlyfans.HighlightCategories, error)
	Highlight(ctx context.Context, categoryID int64) (*onlyfans.Highlight, error)
	Stories(ctx context.Context, userID int64) (onlyfans.Stories, error)
	Open(ctx context.Context, rawURL string) (*http.Response, error)
}

var _ API = (*onlyfans.Client)(nil)
