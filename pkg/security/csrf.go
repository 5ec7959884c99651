package security

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

var (
	ErrCSRFMissing  = errors.New("security: csrf token missing")
	ErrCSRFMismatch = errors.New("security: csrf token mismatch")
)

// CSRF implements the double-submit cookie check: the token stored in a
// cookie must be echoed back in a header or form field.
type CSRF struct {
	CookieName string
	HeaderName string
	FieldName  string
	Secure     bool
}

// NewCSRF returns a CSRF checker with the default cookie, header and field names.
func NewCSRF() *CSRF {
	return &CSRF{
		CookieName: "csrf_token",
		HeaderName: "X-CSRF-Token",
		FieldName:  "csrf_token",
	}
}

// Issue sets a fresh token cookie on w and returns the token.
func (c *CSRF) Issue(w http.ResponseWriter) string {
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     c.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// Verify checks that r carries a cookie token and the same token in the
// header or form field.
func (c *CSRF) Verify(r *http.Request) error {
	if r == nil {
		return ErrCSRFMissing
	}
	cookie, err := r.Cookie(c.CookieName)
	if err != nil || cookie.Value == "" {
		return ErrCSRFMissing
	}
	sent := r.Header.Get(c.HeaderName)
	if sent == "" {
		sent = r.PostFormValue(c.FieldName)
	}
	if sent == "" {
		return ErrCSRFMissing
	}
	if subtle.ConstantTimeCompare([]byte(sent), []byte(cookie.Value)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}
