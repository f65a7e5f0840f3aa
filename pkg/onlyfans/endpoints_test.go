package onlyfans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringize(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{true, "true"},
		{false, "false"},
		{10, "10"},
		{int64(-3), "-3"},
		{1.5, "1.5"},
		{"a b", "a b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringize(tt.in))
	}
}

func TestBuildURL(t *testing.T) {
	got := BuildURL(BaseURL, api("users", int64(42), "posts"), []Param{
		{"limit", 10},
		{"offset", 0},
		{"order", "publish_date_desc"},
	})
	assert.Equal(t, "https://onlyfans.com/api2/v2/users/42/posts?limit=10&offset=0&order=publish_date_desc", got)
}

func TestBuildURLEscapesSegments(t *testing.T) {
	got := BuildURL("http://x/", []any{"a/b", "c d"}, []Param{{"q", "x&y=z"}, {"flag", true}, {"empty", nil}})
	assert.Equal(t, "http://x/a%2Fb/c%20d?q=x%26y%3Dz&flag=true&empty=", got)
}

func TestBuildURLRepeatedKeys(t *testing.T) {
	got := BuildURL(BaseURL, api("users", "list"), usersListParams([]int64{3, 1, 2}))
	assert.Equal(t, "https://onlyfans.com/api2/v2/users/list?x%5B%5D=3&x%5B%5D=1&x%5B%5D=2", got)
}

func TestRequestShapes(t *testing.T) {
	parts, params := subscriptionsRequest(20)
	assert.Equal(t, "/api2/v2/subscriptions/subscribes?limit=10&offset=20&type=active&format=infinite", BuildURL("", parts, params))

	parts, params = chatsRequest(0)
	assert.Equal(t, "/api2/v2/chats?limit=10&offset=0&skip_users=all&order=recent", BuildURL("", parts, params))

	parts, params = postsRequest(7, 10, true)
	assert.Equal(t, "/api2/v2/users/7/posts/archived?limit=10&offset=10&order=publish_date_desc", BuildURL("", parts, params))

	parts, params = messagesRequest(7, 3)
	assert.Equal(t, "/api2/v2/chats/7/messages?limit=10&offset=3&order=desc", BuildURL("", parts, params))

	parts, params = highlightCategoriesRequest(7, 5)
	assert.Equal(t, "/api2/v2/users/7/stories/highlights?limit=5&offset=5", BuildURL("", parts, params))
}
