// Package onlyfans is a typed client for the platform's JSON API.
//
// It includes:
//   - URL construction with per-segment escaping and ordered query strings
//   - Typed records for profiles, posts, messages, stories and highlights
//   - A Client that signs every request and decodes strictly
//   - A bounded profile cache shared by the collection fetchers
//
// Example usage:
//
//	signer := sign.NewSigner(rules, cookie, userAgent, xbc)
//	client := onlyfans.NewClient(httpClient, signer)
//
//	user, err := client.User(ctx, "someone")
//	if err != nil {
//	    log.Printf("lookup failed with status %d", errors.StatusCode(err))
//	}
//
//	posts, err := client.Posts(ctx, user.ID, 0)
package onlyfans
