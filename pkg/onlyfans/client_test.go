package onlyfans

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "ofdl/pkg/errors"
	"ofdl/pkg/logger"
	"ofdl/pkg/retry"
	"ofdl/pkg/sign"
)

func testSigner() *sign.Signer {
	rules := &sign.Rules{
		StaticParam:      "abcDEF123",
		Format:           "29141:{}:{:x}:66d2d4c9",
		ChecksumIndexes:  []int{3, 5, 7, 11, 13},
		ChecksumConstant: -500,
		AppToken:         "33d57ade8c02dbc5a333db99ff9ae26a",
	}
	return sign.NewSigner(rules, "sess=1", "test-agent", "xbc", sign.WithClock(func() time.Time {
		return time.Unix(1700000000, 0)
	}))
}

// newTestClient serves handler and returns a client rooted at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *logger.TestLogger) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logger.NewTestLogger()
	return NewClient(srv.Client(), testSigner(), WithBaseURL(srv.URL), WithLogger(log)), log
}

func TestGetSignsExactRequestURI(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		want, err := sign.Sign(testSigner().Rules(), r.URL.RequestURI(), 1700000000)
		assert.NoError(t, err)
		assert.Equal(t, want, r.Header.Get("sign"))
		assert.Equal(t, "1700000000", r.Header.Get("time"))
		assert.Equal(t, "sess=1", r.Header.Get("cookie"))
		assert.Equal(t, "test-agent", r.Header.Get("user-agent"))
		assert.Equal(t, "xbc", r.Header.Get("x-bc"))
		assert.Equal(t, "/api2/v2/users/1/posts", r.URL.Path)
		assert.Equal(t, "limit=10&offset=0&order=publish_date_desc", r.URL.RawQuery)
		_, _ = w.Write([]byte(`[]`))
	})

	posts, err := client.Posts(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestGetWithoutRulesSendsNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), sign.NewSigner(nil, "", "", "x"), WithBaseURL(srv.URL), WithLogger(logger.NewNopLogger()))
	_, err := client.User(context.Background(), "me")
	assert.ErrorIs(t, err, errs.ErrNoRules)
	assert.Zero(t, hits.Load())
}

func TestGetStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		typ    errs.ErrorType
	}{
		{http.StatusUnauthorized, errs.ErrorTypeAuth},
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit},
		{http.StatusBadGateway, errs.ErrorTypeServerError},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.User(context.Background(), "someone")
			require.Error(t, err)
			assert.True(t, errs.IsType(err, tt.typ))
			assert.Equal(t, tt.status, errs.StatusCode(err))

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "/api2/v2/users/someone", e.Path)
		})
	}
}

func TestGetDecodeFailureLogsPayload(t *testing.T) {
	client, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"not a number"}`))
	})

	_, err := client.User(context.Background(), "someone")
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))

	msgs := log.GetMessagesByLevel("DEBUG")
	var found bool
	for _, m := range msgs {
		if m.Message == "received unparseable response" {
			found = true
			assert.Equal(t, `{"id":"not a number"}`, m.Fields["payload"])
		}
	}
	assert.True(t, found)
}

func TestGetValidationFailureIsParsingError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1}`))
	})
	_, err := client.User(context.Background(), "someone")
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))
}

// newRetryingClient serves handler behind a retry.Transport with quick
// pauses.
func newRetryingClient(t *testing.T, maxRetries int, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tr := retry.NewTransport(srv.Client().Transport, maxRetries, 0, nil, logger.NewNopLogger())
	tr.Backoff = &retry.ConstantBackoff{Delay: 40 * time.Millisecond}
	return NewClient(&http.Client{Transport: tr}, testSigner(), WithBaseURL(srv.URL), WithLogger(logger.NewNopLogger()))
}

func TestGetTimeout(t *testing.T) {
	client := newRetryingClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client.timeout = 20 * time.Millisecond

	_, err := client.User(context.Background(), "slow")
	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
}

func TestGetTimeoutAppliesPerAttempt(t *testing.T) {
	var hits atomic.Int32
	client := newRetryingClient(t, 10, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 5 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	// five pauses of 40ms add up to more than the timeout
	client.timeout = 100 * time.Millisecond

	posts, err := client.Posts(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.EqualValues(t, 6, hits.Load())
}

func TestGetExhaustedRetriesKeepStatus(t *testing.T) {
	client := newRetryingClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client.timeout = 100 * time.Millisecond

	_, err := client.Posts(context.Background(), 1, 0)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, errs.StatusCode(err))
}

func TestSubscriptionsPaginates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/v2/subscriptions/subscribes", r.URL.Path)
		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write([]byte(`{"list":[{"id":1,"username":"a"},{"id":2,"username":"b"}],"hasMore":true}`))
		case "2":
			_, _ = w.Write([]byte(`{"list":[{"id":3,"username":"c"}],"hasMore":false}`))
		default:
			t.Errorf("unexpected offset %s", r.URL.Query().Get("offset"))
		}
	})

	users, err := client.Subscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "c", users[2].Username)
}

func TestChatsResolvesProfilesInOrder(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api2/v2/chats":
			switch q.Get("offset") {
			case "0":
				_, _ = w.Write([]byte(`{"list":[{"withUser":{"id":20}},{"withUser":{"id":10}}],"hasMore":true,"nextOffset":7}`))
			case "7":
				_, _ = w.Write([]byte(`{"list":[{"withUser":{"id":30}}],"hasMore":false,"nextOffset":8}`))
			}
		case "/api2/v2/users/list":
			body := "{"
			for i, id := range q["x[]"] {
				if i > 0 {
					body += ","
				}
				body += fmt.Sprintf(`"%s":{"id":%s,"username":"u%s"}`, id, id, id)
			}
			_, _ = w.Write([]byte(body + "}"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	users, err := client.Chats(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, []string{"u20", "u10", "u30"}, []string{users[0].Username, users[1].Username, users[2].Username})
}

func TestMessagesPage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/v2/chats/5/messages", r.URL.Path)
		_, _ = w.Write([]byte(`{"list":[{"id":1,"text":null,"price":0,"media":[],"previews":[],"fromUser":{"id":5},"createdAt":"2024-01-01T00:00:00+00:00"}],"hasMore":false}`))
	})
	page, err := client.Messages(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.List, 1)
}

func TestHighlightAndStories(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api2/v2/stories/highlights/4":
			_, _ = w.Write([]byte(`{"id":4,"userId":5,"title":"T","cover":"","createdAt":"2024-01-01T00:00:00+00:00","stories":[]}`))
		case "/api2/v2/users/5/stories":
			_, _ = w.Write([]byte(`[{"id":1,"userId":5,"createdAt":"2024-01-01T00:00:00+00:00","media":[],"question":null}]`))
		case "/api2/v2/users/5/stories/highlights":
			_, _ = w.Write([]byte(`[{"id":4,"userId":5,"title":"T","cover":"","createdAt":"2024-01-01T00:00:00+00:00"}]`))
		}
	})

	h, err := client.Highlight(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "T", h.Title)

	ss, err := client.Stories(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, ss, 1)

	hc, err := client.HighlightCategories(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Len(t, hc, 1)
}

func TestOpen(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("sign"))
		if r.URL.Path == "/gone.jpg" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("bytes"))
	})

	resp, err := client.Open(context.Background(), client.baseURL+"/a.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(body))

	_, err = client.Open(context.Background(), client.baseURL+"/gone.jpg")
	assert.Equal(t, http.StatusForbidden, errs.StatusCode(err))
}
