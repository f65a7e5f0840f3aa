// Package sign produces the per-request authentication headers the API
// requires.
//
// Every request carries a SHA-1 based "sign" header derived from a rule set
// published by the community and refreshed whenever the platform rotates its
// parameters. See FetchRules.
package sign

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "ofdl/pkg/errors"
)

// Accept is sent with every API request.
const Accept = "application/json, text/plain, */*"

// Rules is the header rule set that parameterizes signing.
type Rules struct {
	StaticParam      string `json:"static_param"`
	Format           string `json:"format"`
	ChecksumIndexes  []int  `json:"checksum_indexes"`
	ChecksumConstant int    `json:"checksum_constant"`
	AppToken         string `json:"app_token"`
}

// Sign computes the sign header for pathQuery at the given unix second.
// pathQuery is the request path plus "?query" when a query is present.
func Sign(rules *Rules, pathQuery string, unix int64) (string, error) {
	if rules == nil {
		return "", errs.ErrNoRules
	}

	sum := sha1.Sum([]byte(strings.Join([]string{
		rules.StaticParam,
		strconv.FormatInt(unix, 10),
		pathQuery,
		"0",
	}, "\n")))
	digest := hex.EncodeToString(sum[:])

	checksum := rules.ChecksumConstant
	for _, idx := range rules.ChecksumIndexes {
		i := idx
		if i < 0 {
			i += len(digest)
		}
		if i < 0 || i >= len(digest) {
			return "", configErr(fmt.Sprintf("checksum index %d out of range", idx))
		}
		checksum += int(digest[i])
	}
	if checksum < 0 {
		checksum = -checksum
	}

	out, err := format(rules.Format, digest, checksum)
	if err != nil {
		return "", configErr(err.Error())
	}
	return out, nil
}

func configErr(msg string) error {
	return errs.New(errs.ErrorTypeConfig, "", "header rules: "+msg, nil)
}

// Signer builds request headers for one identity.
type Signer struct {
	rules     *Rules
	cookie    string
	userAgent string
	xbc       string
	now       func() time.Time
}

// Option configures a Signer
type Option func(*Signer)

// WithClock overrides the time source used for the time header.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner returns a Signer. rules may be nil, in which case Headers
// always fails with a configuration error.
func NewSigner(rules *Rules, cookie, userAgent, xbc string, opts ...Option) *Signer {
	s := &Signer{
		rules:     rules,
		cookie:    cookie,
		userAgent: userAgent,
		xbc:       xbc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rule set in use, or nil.
func (s *Signer) Rules() *Rules { return s.rules }

// Headers returns the full header set for a request to pathQuery.
func (s *Signer) Headers(pathQuery string) (http.Header, error) {
	if s.rules == nil {
		return nil, errs.ErrNoRules
	}

	unix := s.now().Unix()
	signature, err := Sign(s.rules, pathQuery, unix)
	if err != nil {
		return nil, err
	}

	h := make(http.Header, 7)
	h.Set("Accept", Accept)
	h.Set("App-Token", s.rules.AppToken)
	h.Set("Sign", signature)
	h.Set("Time", strconv.FormatInt(unix, 10))
	h.Set("X-Bc", s.xbc)
	if s.cookie != "" {
		h.Set("Cookie", s.cookie)
	}
	if s.userAgent != "" {
		h.Set("User-Agent", s.userAgent)
	}
	return h, nil
}
