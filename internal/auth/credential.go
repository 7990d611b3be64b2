package auth

import (
	"net/http"
	"strings"
)

// Source names a channel a credential can be carried on.
type Source string

const (
	// SourcePayload is the handshake auth payload, sent as the "token" query
	// parameter of the upgrade request.
	SourcePayload Source = "payload"
	SourceHeader  Source = "header"
	SourceCookie  Source = "cookie"
)

const (
	payloadParam = "token"
	cookieName   = "accessToken"
)

// HandshakeSources is the precedence used when gating realtime connections.
var HandshakeSources = []Source{SourcePayload, SourceHeader, SourceCookie}

// RequestSources is the precedence used when gating HTTP requests.
var RequestSources = []Source{SourceHeader, SourceCookie}

// CredentialFromRequest returns the first credential found on r, trying the
// sources in order.
func CredentialFromRequest(r *http.Request, sources ...Source) (string, Source, bool) {
	for _, src := range sources {
		if token := credentialFrom(r, src); token != "" {
			return token, src, true
		}
	}
	return "", "", false
}

func credentialFrom(r *http.Request, src Source) string {
	switch src {
	case SourcePayload:
		return strings.TrimSpace(r.URL.Query().Get(payloadParam))
	case SourceHeader:
		authorization := r.Header.Get("Authorization")
		scheme, token, found := strings.Cut(authorization, " ")
		if found && scheme == "Bearer" {
			return strings.TrimSpace(token)
		}
	case SourceCookie:
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}
