package service

import "time"

// Session is the caller identity a transport attaches to a request. The zero
// value is an anonymous caller.
type Session struct {
	UserID    string
	SessionID string
}

// Anonymous reports whether the session carries no identity.
func (s Session) Anonymous() bool {
	return s.UserID == ""
}

// ResolveCaller returns the caller's user ID or ErrUnauthenticated. Every
// service operation calls it before touching storage.
func ResolveCaller(sess Session) (string, error) {
	if sess.Anonymous() {
		return "", ErrUnauthenticated
	}
	return sess.UserID, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
