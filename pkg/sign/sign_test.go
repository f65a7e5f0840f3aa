package sign

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "ofdl/pkg/errors"
)

func testRules() *Rules {
	return &Rules{
		StaticParam:      "abcDEF123",
		Format:           "29141:{}:{:x}:66d2d4c9",
		ChecksumIndexes:  []int{3, 5, 7, 11, 13},
		ChecksumConstant: -500,
		AppToken:         "33d57ade8c02dbc5a333db99ff9ae26a",
	}
}

func TestSignKnownVectors(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api2/v2/users/me", "29141:3da6846f049bdb0ea25f1bdb076efe434167c198:60:66d2d4c9"},
		{"/api2/v2/users/1/posts?limit=10&offset=0&order=publish_date_desc", "29141:e44179b81443b77fed275cff68e349127253df72:e8:66d2d4c9"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Sign(testRules(), tt.path, 1700000000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	a, err := Sign(testRules(), "/api2/v2/users/me", 1700000000)
	require.NoError(t, err)
	b, err := Sign(testRules(), "/api2/v2/users/me", 1700000000)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Sign(testRules(), "/api2/v2/users/me", 1700000001)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSignBadIndex(t *testing.T) {
	rules := testRules()
	rules.ChecksumIndexes = []int{40}
	_, err := Sign(rules, "/x", 1)
	assert.True(t, errs.IsType(err, errs.ErrorTypeConfig))
}

func TestSignNegativeIndexCountsFromEnd(t *testing.T) {
	a := testRules()
	a.ChecksumIndexes = []int{-1}
	b := testRules()
	b.ChecksumIndexes = []int{39}

	sa, err := Sign(a, "/x", 1)
	require.NoError(t, err)
	sb, err := Sign(b, "/x", 1)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestSignNoRules(t *testing.T) {
	_, err := Sign(nil, "/x", 1)
	assert.ErrorIs(t, err, errs.ErrNoRules)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		tmpl    string
		want    string
		wantErr bool
	}{
		{"{}:{:x}", "abc:ff", false},
		{"{1:d}-{0}", "255-abc", false},
		{"{{{}}}", "{abc}", false},
		{"{:X}", "", true},
		{"{1:X}", "FF", false},
		{"{}{}{}", "", true},
		{"{", "", true},
		{"}", "", true},
		{"{name}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			got, err := format(tt.tmpl, "abc", 255)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignerHeaders(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	s := NewSigner(testRules(), "sess=1", "Mozilla/5.0", "x", WithClock(clock))

	h, err := s.Headers("/api2/v2/users/me")
	require.NoError(t, err)
	assert.Equal(t, Accept, h.Get("accept"))
	assert.Equal(t, "33d57ade8c02dbc5a333db99ff9ae26a", h.Get("app-token"))
	assert.Equal(t, "1700000000", h.Get("time"))
	assert.Equal(t, "29141:3da6846f049bdb0ea25f1bdb076efe434167c198:60:66d2d4c9", h.Get("sign"))
	assert.Equal(t, "x", h.Get("x-bc"))
	assert.Equal(t, "sess=1", h.Get("cookie"))
	assert.Equal(t, "Mozilla/5.0", h.Get("user-agent"))
}

func TestSignerOmitsEmptyCredentials(t *testing.T) {
	h, err := NewSigner(testRules(), "", "", "x").Headers("/x")
	require.NoError(t, err)
	_, hasCookie := h["Cookie"]
	_, hasUA := h["User-Agent"]
	assert.False(t, hasCookie)
	assert.False(t, hasUA)
}

func TestSignerWithoutRules(t *testing.T) {
	_, err := NewSigner(nil, "c", "ua", "x").Headers("/x")
	assert.ErrorIs(t, err, errs.ErrNoRules)
}

func TestFetchRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"static_param":"abc","format":"1:{}:{:x}:2","checksum_indexes":[1,2],"checksum_constant":7,"app_token":"tok","extra":true}`))
		case "/partial":
			_, _ = w.Write([]byte(`{"static_param":"abc","format":"x"}`))
		case "/garbage":
			_, _ = w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rules, err := FetchRules(context.Background(), srv.Client(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, &Rules{
		StaticParam:      "abc",
		Format:           "1:{}:{:x}:2",
		ChecksumIndexes:  []int{1, 2},
		ChecksumConstant: 7,
		AppToken:         "tok",
	}, rules)

	_, err = FetchRules(context.Background(), srv.Client(), srv.URL+"/partial")
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))

	_, err = FetchRules(context.Background(), srv.Client(), srv.URL+"/garbage")
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))

	_, err = FetchRules(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.Equal(t, 404, errs.StatusCode(err))
}
