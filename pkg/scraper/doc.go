// Package scraper runs incremental sync passes for one identity.
//
// A pass has two halves. First every collection (posts, archived posts,
// messages, highlights and, unless temporary content is skipped, stories)
// is fetched for each target user, newest first, stopping at the first
// record not newer than what the user's ledger already holds. Then each
// user's new media is downloaded and recorded:
//
//	s, err := scraper.New(client, scraper.Options{
//	    Name:         "main",
//	    DownloadRoot: "downloads",
//	}, log)
//	if err != nil {
//	    return err
//	}
//	stats, err := s.Pass(ctx, scraper.Targets{Users: subs, Chats: chats})
//
// Files land at <root>/<username>/<source type>/<file type>s/<name>, where
// name comes from the download template (see Template) passed through
// Sanitize. Each user's .media.db ledger is what makes re-runs cheap: an
// item that is already recorded is never fetched again.
package scraper
