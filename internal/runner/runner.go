// Package runner drives every configured identity through discovery, fetch
// and download, once or forever.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ofdl/pkg/auth"
	"ofdl/pkg/config"
	errs "ofdl/pkg/errors"
	"ofdl/pkg/logger"
	"ofdl/pkg/onlyfans"
	"ofdl/pkg/ratelimit"
	"ofdl/pkg/retry"
	"ofdl/pkg/scraper"
	"ofdl/pkg/sign"
)

// CredentialSource supplies session values for scrapers whose config has
// no cookie. *auth.Manager satisfies it.
type CredentialSource interface {
	Retrieve(scraper string) (*auth.Credentials, error)
}

// Options select what one Run does
type Options struct {
	// Usernames, when set, replace discovery: they are both the
	// subscription and the chat targets.
	Usernames []string
	// Forever repeats passes every run.interval until ctx is done.
	Forever bool
}

// Runner owns the identities built from a config.
type Runner struct {
	cfg     *config.Config
	creds   CredentialSource
	baseURL string
	logger  logger.Logger

	identities map[string]*scraper.Scraper
	rules      map[string]*sign.Rules
}

// Option configures a Runner
type Option func(*Runner)

// WithCredentials sets where missing cookies are looked up
func WithCredentials(c CredentialSource) Option {
	return func(r *Runner) { r.creds = c }
}

// WithBaseURL points every identity's API client at another authority.
func WithBaseURL(base string) Option {
	return func(r *Runner) { r.baseURL = base }
}

// New creates a Runner for cfg
func New(cfg *config.Config, log logger.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	r := &Runner{
		cfg:        cfg,
		baseURL:    onlyfans.BaseURL,
		logger:     log,
		identities: make(map[string]*scraper.Scraper),
		rules:      make(map[string]*sign.Rules),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one iteration over every identity, or keeps iterating when
// Forever is set. Per-identity failures are logged and never stop the
// loop. Cancelling ctx ends the run with ctx.Err().
func (r *Runner) Run(ctx context.Context, opts Options) error {
	if len(r.cfg.Scrapers) == 0 {
		return errs.New(errs.ErrorTypeConfig, "", "no scrapers configured", nil)
	}
	for {
		r.iterate(ctx, opts)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !opts.Forever {
			return nil
		}
		r.logger.DebugWithFields("sleeping until next pass", map[string]interface{}{
			"interval": r.cfg.Run.Interval.String(),
		})
		if err := retry.Wait(ctx, r.cfg.Run.Interval); err != nil {
			return err
		}
	}
}

func (r *Runner) iterate(ctx context.Context, opts Options) {
	for _, name := range r.cfg.Names() {
		if ctx.Err() != nil {
			return
		}
		log := r.logger.WithField("scraper", name)

		s, err := r.identity(ctx, name)
		if err != nil {
			log.WithError(err).WithField("status", errs.StatusCode(err)).Error("failed to set up scraper")
			continue
		}
		if err := r.pass(ctx, s, opts.Usernames, log); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).WithField("status", errs.StatusCode(err)).Error("scraper pass failed")
		}
	}
}

// pass discovers the targets for one identity and syncs them.
func (r *Runner) pass(ctx context.Context, s *scraper.Scraper, usernames []string, log logger.Logger) error {
	start := time.Now()

	var targets scraper.Targets
	if len(usernames) > 0 {
		users, err := s.Lookup(ctx, usernames)
		if err != nil {
			return err
		}
		targets = scraper.Targets{Users: users, Chats: users}
	} else {
		subs, err := s.Subscriptions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}
		log.InfoWithFields("found subscriptions", map[string]interface{}{"count": len(subs)})

		chats, err := s.Chats(ctx)
		if err != nil {
			return fmt.Errorf("failed to list chats: %w", err)
		}
		log.InfoWithFields("found chats", map[string]interface{}{"count": len(chats)})
		targets = scraper.Targets{Users: subs, Chats: chats}
	}

	stats, err := s.Pass(ctx, targets)
	log.InfoWithFields("pass complete", map[string]interface{}{
		"users":          stats.Users,
		"new_media":      stats.NewMedia,
		"placed":         stats.Download.Placed,
		"existing":       stats.Download.Existing,
		"failed":         stats.Download.Failed,
		"failed_fetches": stats.FailedFetches,
		"duration_ms":    time.Since(start).Milliseconds(),
	})
	return err
}

// identity returns the scraper for name, building it on first use. A
// failed build is retried on the next iteration.
func (r *Runner) identity(ctx context.Context, name string) (*scraper.Scraper, error) {
	if s, ok := r.identities[name]; ok {
		return s, nil
	}
	sc := r.cfg.Scrapers[name]
	if sc == nil {
		return nil, errs.New(errs.ErrorTypeConfig, name, "unknown scraper", nil)
	}
	log := r.logger.WithField("scraper", name)

	cookie, userAgent, xbc, err := r.credentials(name, sc)
	if err != nil {
		return nil, err
	}
	httpClient, err := r.httpClient(sc, log)
	if err != nil {
		return nil, err
	}
	rules, err := r.rulesFor(ctx, httpClient, sc.Rules)
	if err != nil {
		return nil, err
	}

	signer := sign.NewSigner(rules, cookie, userAgent, xbc)
	client := onlyfans.NewClient(httpClient, signer,
		onlyfans.WithBaseURL(r.baseURL),
		onlyfans.WithTimeout(r.cfg.HTTP.RequestTimeout),
		onlyfans.WithLogger(log),
	)

	s, err := scraper.New(client, scraper.Options{
		Name:          name,
		DownloadRoot:  sc.DownloadRoot,
		Template:      sc.DownloadTemplate,
		SkipTemporary: sc.SkipTemporary,
		Workers:       r.cfg.Run.Workers,
	}, r.logger)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, name, "invalid scraper config", err)
	}
	r.identities[name] = s
	return s, nil
}

// credentials merges the configured session values with the credential
// source. A configured cookie wins outright. A stored cookie brings its own
// x-bc, since the two belong to one browser session, and fills a missing
// user agent.
func (r *Runner) credentials(name string, sc *config.ScraperConfig) (cookie, userAgent, xbc string, err error) {
	cookie, userAgent, xbc = sc.Cookie, sc.UserAgent, sc.XBC
	if cookie == "" && r.creds != nil {
		if stored, err := r.creds.Retrieve(name); err == nil {
			cookie = stored.Cookie
			if userAgent == "" {
				userAgent = stored.UserAgent
			}
			if stored.XBC != "" {
				xbc = stored.XBC
			}
		}
	}
	if cookie == "" {
		return "", "", "", errs.New(errs.ErrorTypeConfig, name, "no cookie configured", nil)
	}
	return cookie, userAgent, xbc, nil
}

// httpClient builds the identity's session: proxy and header timeout on
// the base transport, retries and rate limiting above it.
func (r *Runner) httpClient(sc *config.ScraperConfig, log logger.Logger) (*http.Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = r.cfg.HTTP.RequestTimeout
	if sc.Proxy != "" {
		proxy, err := url.Parse(sc.Proxy)
		if err != nil || proxy.Host == "" {
			return nil, errs.New(errs.ErrorTypeConfig, sc.Proxy, "invalid proxy url", err)
		}
		base.Proxy = http.ProxyURL(proxy)
	}

	transport := retry.NewTransport(base, r.cfg.HTTP.MaxRetries, r.cfg.HTTP.Backoff,
		ratelimit.PerMinute(r.cfg.HTTP.RequestsPerMinute), log)
	return &http.Client{Transport: transport}, nil
}

// rulesFor fetches the rule set at rulesURL once per run.
func (r *Runner) rulesFor(ctx context.Context, client *http.Client, rulesURL string) (*sign.Rules, error) {
	if rules, ok := r.rules[rulesURL]; ok {
		return rules, nil
	}
	ctx = retry.WithAttemptTimeout(ctx, r.cfg.HTTP.RequestTimeout)
	rules, err := sign.FetchRules(ctx, client, rulesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load header rules: %w", err)
	}
	r.logger.DebugWithFields("loaded header rules", map[string]interface{}{"url": rulesURL})
	r.rules[rulesURL] = rules
	return rules, nil
}
