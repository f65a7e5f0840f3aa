package onlyfans

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the API authority every endpoint is rooted at
	BaseURL = "https://onlyfans.com"

	// PageSize is the limit sent to offset-paginated collections
	PageSize = 10

	// HighlightPageSize is the limit for highlight category pages
	HighlightPageSize = 5
)

// Param is one query parameter. Order is preserved and keys may repeat.
type Param struct {
	Key   string
	Value any
}

// Stringize converts a primitive to its wire form: booleans are lowercase,
// nil is empty.
func Stringize(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// BuildURL joins base with escaped path parts and an ordered query string.
// Each part is escaped as a single segment, so a "/" inside a part is
// encoded rather than splitting the path.
func BuildURL(base string, parts []any, params []Param) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(base, "/"))
	for _, p := range parts {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(Stringize(p)))
	}
	for i, p := range params {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(Stringize(p.Value)))
	}
	return sb.String()
}

func api(parts ...any) []any {
	return append([]any{"api2", "v2"}, parts...)
}

// userPath addresses a profile by numeric id or username
func userPath(idOrName string) []any { return api("users", idOrName) }

func usersListParams(ids []int64) []Param {
	params := make([]Param, 0, len(ids))
	for _, id := range ids {
		params = append(params, Param{"x[]", id})
	}
	return params
}

func subscriptionsRequest(offset int) ([]any, []Param) {
	return api("subscriptions", "subscribes"), []Param{
		{"limit", PageSize},
		{"offset", offset},
		{"type", "active"},
		{"format", "infinite"},
	}
}

func chatsRequest(offset int) ([]any, []Param) {
	return api("chats"), []Param{
		{"limit", PageSize},
		{"offset", offset},
		{"skip_users", "all"},
		{"order", "recent"},
	}
}

func postsRequest(userID int64, offset int, archived bool) ([]any, []Param) {
	parts := api("users", userID, "posts")
	if archived {
		parts = append(parts, "archived")
	}
	return parts, []Param{
		{"limit", PageSize},
		{"offset", offset},
		{"order", "publish_date_desc"},
	}
}

func messagesRequest(userID int64, offset int) ([]any, []Param) {
	return api("chats", userID, "messages"), []Param{
		{"limit", PageSize},
		{"offset", offset},
		{"order", "desc"},
	}
}

func highlightCategoriesRequest(userID int64, offset int) ([]any, []Param) {
	return api("users", userID, "stories", "highlights"), []Param{
		{"limit", HighlightPageSize},
		{"offset", offset},
	}
}
