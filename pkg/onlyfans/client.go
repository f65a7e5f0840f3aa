package onlyfans

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	errs "ofdl/pkg/errors"
	"ofdl/pkg/logger"
	"ofdl/pkg/retry"
	"ofdl/pkg/sign"
)

// DefaultTimeout bounds each attempt of an API call. The bound is enforced
// by retry.Transport, so pauses between retries do not count against it.
const DefaultTimeout = 10 * time.Second

// maxPayload caps API response bodies read into memory
const maxPayload = 32 << 20

// Client issues signed requests against the API and decodes the responses.
type Client struct {
	httpClient *http.Client
	signer     *sign.Signer
	baseURL    string
	timeout    time.Duration
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another authority, used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an API client. httpClient carries the transport policy
// (retries, proxy); the signer carries the identity's credentials.
func NewClient(httpClient *http.Client, signer *sign.Signer, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		signer:     signer,
		baseURL:    BaseURL,
		timeout:    DefaultTimeout,
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type validator interface {
	Validate() error
}

// Get requests the endpoint built from parts and params and decodes the
// JSON body into target. Every failure is an *errors.Error carrying the
// endpoint path and, when a response arrived, its status code.
func (c *Client) Get(ctx context.Context, parts []any, params []Param, target any) error {
	raw := BuildURL(c.baseURL, parts, params)
	u, err := url.Parse(raw)
	if err != nil {
		return errs.New(errs.ErrorTypeUnknown, raw, "invalid url", err)
	}
	path := u.EscapedPath()

	headers, err := c.signer.Headers(u.RequestURI())
	if err != nil {
		return err
	}

	ctx = retry.WithAttemptTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return errs.New(errs.ErrorTypeUnknown, path, "build request", err)
	}
	req.Header = headers

	c.logger.DebugWithFields("sending API request", map[string]interface{}{"path": path})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.New(errs.ErrorTypeNetwork, path, "send API request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return errs.FromStatus(path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return &errs.Error{Type: errs.ErrorTypeNetwork, Path: path, Code: resp.StatusCode, Message: "read response", Err: err}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return c.decodeFailure(path, body, target, err)
	}
	if v, ok := target.(validator); ok {
		if err := v.Validate(); err != nil {
			return c.decodeFailure(path, body, target, err)
		}
	}
	return nil
}

func (c *Client) decodeFailure(path string, body []byte, target any, err error) error {
	c.logger.DebugWithFields("received unparseable response", map[string]interface{}{
		"path":    path,
		"payload": string(body),
	})
	return errs.New(errs.ErrorTypeParsing, path, "parse API response into "+typeName(target), err)
}

func typeName(v any) string {
	switch v.(type) {
	case *User:
		return "User"
	case *UserMap:
		return "UserMap"
	case *Posts:
		return "Posts"
	case *Messages:
		return "Messages"
	case *Stories:
		return "Stories"
	case *Highlight:
		return "Highlight"
	case *HighlightCategories:
		return "HighlightCategories"
	default:
		return "response"
	}
}

// Open starts an unsigned GET for a media URL. The caller closes the
// response body. A non-2xx status is returned as an error.
func (c *Client) Open(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, rawURL, "build request", err)
	}
	path := req.URL.Path

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, path, "fetch media", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errs.FromStatus(path, resp.StatusCode)
	}
	return resp, nil
}

// UserMap is a batch profile lookup keyed by user id.
type UserMap map[int64]User

// User fetches one profile by id or username.
func (c *Client) User(ctx context.Context, idOrName string) (*User, error) {
	var u User
	if err := c.Get(ctx, userPath(idOrName), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByID fetches one profile by numeric id.
func (c *Client) UserByID(ctx context.Context, id int64) (*User, error) {
	return c.User(ctx, strconv.FormatInt(id, 10))
}

// Users fetches several profiles at once. No ids means no request.
func (c *Client) Users(ctx context.Context, ids ...int64) (UserMap, error) {
	if len(ids) == 0 {
		return UserMap{}, nil
	}
	var m UserMap
	if err := c.Get(ctx, api("users", "list"), usersListParams(ids), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Subscriptions lists every active subscription.
func (c *Client) Subscriptions(ctx context.Context) ([]User, error) {
	var users []User
	offset := 0
	for {
		parts, params := subscriptionsRequest(offset)
		var page Page[User]
		if err := c.Get(ctx, parts, params, &page); err != nil {
			return nil, err
		}
		users = append(users, page.List...)
		offset += len(page.List)
		if !page.HasMore || len(page.List) == 0 {
			return users, nil
		}
	}
}

// Chats lists the users the identity has conversations with, resolved to
// full profiles in chat order.
func (c *Client) Chats(ctx context.Context) ([]User, error) {
	var users []User
	offset := 0
	for {
		parts, params := chatsRequest(offset)
		var page CursorPage[Chat]
		if err := c.Get(ctx, parts, params, &page); err != nil {
			return nil, err
		}

		ids := make([]int64, 0, len(page.List))
		for _, chat := range page.List {
			ids = append(ids, chat.WithUser.ID)
		}
		profiles, err := c.Users(ctx, ids...)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if u, ok := profiles[id]; ok {
				users = append(users, u)
			}
		}

		if !page.HasMore || page.NextOffset == offset {
			return users, nil
		}
		offset = page.NextOffset
	}
}

// Posts returns one page of a user's posts, newest first.
func (c *Client) Posts(ctx context.Context, userID int64, offset int) (Posts, error) {
	return c.posts(ctx, userID, offset, false)
}

// ArchivedPosts returns one page of a user's archived posts, newest first.
func (c *Client) ArchivedPosts(ctx context.Context, userID int64, offset int) (Posts, error) {
	return c.posts(ctx, userID, offset, true)
}

func (c *Client) posts(ctx context.Context, userID int64, offset int, archived bool) (Posts, error) {
	parts, params := postsRequest(userID, offset, archived)
	var ps Posts
	if err := c.Get(ctx, parts, params, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Messages returns one page of the conversation with userID, newest first.
func (c *Client) Messages(ctx context.Context, userID int64, offset int) (*Messages, error) {
	parts, params := messagesRequest(userID, offset)
	var ms Messages
	if err := c.Get(ctx, parts, params, &ms); err != nil {
		return nil, err
	}
	return &ms, nil
}

// HighlightCategories returns one page of a user's highlight categories.
func (c *Client) HighlightCategories(ctx context.Context, userID int64, offset int) (HighlightCategories, error) {
	parts, params := highlightCategoriesRequest(userID, offset)
	var hc HighlightCategories
	if err := c.Get(ctx, parts, params, &hc); err != nil {
		return nil, err
	}
	return hc, nil
}

// Highlight returns a category with its stories.
func (c *Client) Highlight(ctx context.Context, categoryID int64) (*Highlight, error) {
	var h Highlight
	if err := c.Get(ctx, api("stories", "highlights", categoryID), nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Stories returns a user's current stories, oldest first.
func (c *Client) Stories(ctx context.Context, userID int64) (Stories, error) {
	var ss Stories
	if err := c.Get(ctx, api("users", userID, "stories"), nil, &ss); err != nil {
		return nil, err
	}
	return ss, nil
}
