package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide prints how to copy the session values out of a logged-in
// browser.
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "SESSION CREDENTIALS")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Log in to the site in your browser.")
	fmt.Fprintln(w, "2. Open Developer Tools (F12) and select the Network tab.")
	fmt.Fprintln(w, "3. Reload, then click any request to /api2/v2/.")
	fmt.Fprintln(w, "4. Under Request Headers copy:")
	fmt.Fprintln(w, "     cookie      the whole value, including sess= and auth_id=")
	fmt.Fprintln(w, "     user-agent  the browser's user agent string")
	fmt.Fprintln(w, "     x-bc        optional; a fresh one is generated when empty")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The cookie grants full access to the account. It is stored")
	fmt.Fprintln(w, "in the system keyring or an encrypted file, never in the config.")
	fmt.Fprintln(w, rule)
}
