// Package storage lays out downloaded media on disk.
//
// The storage package handles:
//   - The per-user directory layout under the download root
//   - Placing files with temp-file-then-rename writes
//   - Size checks for files left by earlier runs
//   - Rotating superseded avatar and header images
//
// A file at its final path is always complete. Interrupted downloads leave
// only "<name>.<token>.part" siblings behind, which are never mistaken for
// finished media.
//
// Usage:
//
//	manager, err := storage.NewManager("downloads")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dest := manager.MediaPath("someone", media.SourceTypePosts, media.FileTypePhoto, "2024-01-01.1.jpg")
//	if !manager.SameSize(dest, resp.ContentLength) {
//	    if _, err := manager.Place(resp.Body, dest); err != nil {
//	        log.Printf("Failed to place media: %v", err)
//	    }
//	}
package storage
