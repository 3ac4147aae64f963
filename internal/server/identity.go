package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	identityCookie   = "annotator_id"
	unknownAnnotator = "unknown"
)

// identities issues and verifies annotator IDs kept in a signed cookie.
// The signature covers an issue timestamp, so values older than the
// lifetime are rejected even if the browser keeps sending them.
type identities struct {
	codec    *securecookie.SecureCookie
	lifetime time.Duration
	secure   bool
}

func newIdentities(secret string, lifetime time.Duration, secure bool) identities {
	codec := securecookie.New([]byte(secret), nil).
		MaxAge(int(lifetime.Seconds())).
		SetSerializer(securecookie.JSONEncoder{})
	return identities{codec: codec, lifetime: lifetime, secure: secure}
}

// read returns the verified annotator ID of r, if any.
func (id identities) read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(identityCookie)
	if err != nil {
		return "", false
	}
	var value string
	if err := id.codec.Decode(identityCookie, cookie.Value, &value); err != nil {
		return "", false
	}
	if _, err := uuid.Parse(value); err != nil {
		return "", false
	}
	return value, true
}

// ensure returns the annotator ID of r, issuing a new one when the
// request carries none or an expired one.
func (id identities) ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if annotator, ok := id.read(r); ok {
		return annotator, nil
	}
	annotator := uuid.NewString()
	encoded, err := id.codec.Encode(identityCookie, annotator)
	if err != nil {
		return "", fmt.Errorf("sign annotator id: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     identityCookie,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(id.lifetime.Seconds()),
		Expires:  time.Now().Add(id.lifetime),
		HttpOnly: true,
		Secure:   id.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return annotator, nil
}

// annotatorOrUnknown is used where the client may not have an identity.
func (id identities) annotatorOrUnknown(r *http.Request) string {
	if annotator, ok := id.read(r); ok {
		return annotator
	}
	return unknownAnnotator
}
