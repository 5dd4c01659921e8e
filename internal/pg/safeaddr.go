package pg

import "net/url"

// SafeAddr reduces a connection string to host:port for error messages
// and logs, so credentials never leak into operator output.
func SafeAddr(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.Host == "" {
		return "<node>"
	}
	return u.Host
}
