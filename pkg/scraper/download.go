package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ofdl/pkg/ledger"
	"ofdl/pkg/logger"
	"ofdl/pkg/media"
	"ofdl/pkg/onlyfans"
	"ofdl/pkg/storage"
)

// DownloadStats counts what a download pass did
type DownloadStats struct {
	// Placed files were fetched and written
	Placed int
	// Existing files were already on disk at full size and only recorded
	Existing int
	// Skipped items were already in the ledger
	Skipped int
	// Unsupported items had a file type with no known extension
	Unsupported int
	Failed      int
}

// Add accumulates o into d
func (d *DownloadStats) Add(o DownloadStats) {
	d.Placed += o.Placed
	d.Existing += o.Existing
	d.Skipped += o.Skipped
	d.Unsupported += o.Unsupported
	d.Failed += o.Failed
}

// DownloadAll places the user's avatar, header and every item of medias
// under the download root, recording each placement in the user's ledger.
// All rows are committed together at the end. Per-item failures are
// logged and counted; only a ledger failure is returned. When ctx is
// cancelled the remaining items are left for the next run and what was
// placed so far is still committed.
func (s *Scraper) DownloadAll(ctx context.Context, user onlyfans.User, medias []media.NormalizedMedia) (DownloadStats, error) {
	var stats DownloadStats
	log := s.logger.WithField("username", user.Username)

	swept, err := s.storage.SweepParts(user.Username, time.Now().Add(-storage.StalePartAge))
	if err != nil {
		log.WithError(err).Warn("failed to remove stale temporary files")
	} else if swept > 0 {
		log.WithField("removed", swept).Info("removed stale temporary files")
	}

	if len(medias) == 0 {
		return stats, nil
	}
	log.InfoWithFields("downloading media", map[string]interface{}{"count": len(medias)})

	// ledger work must survive cancellation so placed files get recorded
	dbctx := context.WithoutCancel(ctx)

	err = ledger.With(dbctx, ledger.Path(s.storage.Root(), user.Username), func(l *ledger.Ledger) error {
		return l.RunTx(dbctx, func(tx *ledger.Tx) error {
			stats = DownloadStats{}
			if err := s.placeProfileImage(ctx, dbctx, tx, user, media.SourceTypeAvatar, user.Avatar, &stats); err != nil {
				return err
			}
			if err := s.placeProfileImage(ctx, dbctx, tx, user, media.SourceTypeHeader, user.Header, &stats); err != nil {
				return err
			}
			for i, m := range medias {
				if ctx.Err() != nil {
					break
				}
				if err := s.placeMedia(ctx, dbctx, tx, user, i, m, &stats); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return stats, fmt.Errorf("download pass for %s: %w", user.Username, err)
	}

	log.InfoWithFields("finished downloading media", map[string]interface{}{
		"placed":   stats.Placed,
		"existing": stats.Existing,
		"skipped":  stats.Skipped,
		"failed":   stats.Failed,
	})
	return stats, ctx.Err()
}

// placeMedia handles one item. It returns an error only when the ledger
// itself fails.
func (s *Scraper) placeMedia(ctx, dbctx context.Context, tx *ledger.Tx, user onlyfans.User, index int, m media.NormalizedMedia, stats *DownloadStats) error {
	recorded, err := tx.Has(dbctx, m.Key())
	if err != nil {
		return err
	}
	if recorded {
		stats.Skipped++
		return nil
	}

	log := s.logger.WithFields(map[string]interface{}{
		"username":    user.Username,
		"source_type": string(m.SourceType),
		"media_id":    m.ID,
	})

	ext, ok := m.FileType.Extension()
	if !ok {
		log.WithField("file_type", string(m.FileType)).Warn("unknown media type")
		stats.Unsupported++
		return nil
	}
	if m.URL == "" {
		log.Warn("media has no source url")
		stats.Failed++
		return nil
	}

	name, err := s.template.Render(Fields{
		"date":        m.CreatedAt,
		"post_id":     m.SourceID,
		"source_id":   m.SourceID,
		"media_id":    m.ID,
		"index":       index,
		"text":        truncate(m.Text, MaxTextLength),
		"extension":   ext,
		"source_type": string(m.SourceType),
		"file_type":   string(m.FileType),
		"value":       string(m.Value),
		"user_id":     m.UserID,
		"username":    user.Username,
	})
	if err != nil {
		log.WithError(err).Error("failed to render file name")
		stats.Failed++
		return nil
	}
	dest := s.storage.MediaPath(user.Username, m.SourceType, m.FileType, Sanitize(name))

	placed, err := s.fetchInto(ctx, m.URL, dest)
	logger.LogDownload(s.logger, user.Username, string(m.SourceType), m.ID, placed, err)
	if err != nil {
		stats.Failed++
		return nil
	}
	if placed {
		stats.Placed++
	} else {
		stats.Existing++
	}
	return tx.Insert(dbctx, ledger.RecordFor(m))
}

// fetchInto streams url to dest unless dest already holds a file of the
// advertised length. placed reports whether bytes were written.
func (s *Scraper) fetchInto(ctx context.Context, url, dest string) (placed bool, err error) {
	resp, err := s.api.Open(ctx, url)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if s.storage.SameSize(dest, resp.ContentLength) {
		return false, nil
	}
	if _, err := s.storage.Place(resp.Body, dest); err != nil {
		return false, err
	}
	return true, nil
}

var errNoLastModified = errors.New("response has no usable Last-Modified header")

// placeProfileImage keeps <user>/<kind>.jpg current. The image's
// Last-Modified time is its ledger identity; a new one moves the previous
// file aside as <kind>-<old timestamp>.jpg before the new file lands.
func (s *Scraper) placeProfileImage(ctx, dbctx context.Context, tx *ledger.Tx, user onlyfans.User, kind media.SourceType, src onlyfans.Maybe[string], stats *DownloadStats) error {
	url, ok := src.Get()
	if !ok || url == "" {
		return nil
	}
	log := s.logger.WithFields(map[string]interface{}{
		"username":    user.Username,
		"source_type": string(kind),
	})

	resp, err := s.api.Open(ctx, url)
	if err != nil {
		log.WithError(err).Error("error getting " + string(kind))
		stats.Failed++
		return nil
	}
	defer resp.Body.Close()

	modified, err := http.ParseTime(resp.Header.Get("Last-Modified"))
	if err != nil {
		log.WithError(errNoLastModified).Error("error getting " + string(kind))
		stats.Failed++
		return nil
	}
	ts := modified.Unix()

	recorded, err := tx.Has(dbctx, media.Key{SourceType: kind, SourceID: ts, MediaID: ts})
	if err != nil {
		return err
	}
	if recorded {
		stats.Skipped++
		return nil
	}

	dest := s.storage.ProfileImagePath(user.Username, kind)
	prev, ok, err := tx.Latest(dbctx, kind)
	if err != nil {
		return err
	}
	if ok {
		if _, err := s.storage.Rotate(dest, prev.Timestamp); err != nil {
			log.WithError(err).Error("failed to keep previous " + string(kind))
			stats.Failed++
			return nil
		}
	}

	if _, err := s.storage.Place(resp.Body, dest); err != nil {
		log.WithError(err).Error("error getting " + string(kind))
		stats.Failed++
		return nil
	}
	stats.Placed++
	return tx.Insert(dbctx, ledger.Record{SourceType: kind, Timestamp: ts, SourceID: ts, MediaID: ts})
}
