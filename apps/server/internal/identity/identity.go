// Package identity resolves the participant identity of an incoming request.
// Authentication happens upstream; this package only reads what the proxy or
// a pre-shared token table vouches for.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const (
	ModeHeader = "header"
	ModeToken  = "token"

	DefaultHeader = "X-Player-ID"
	maxIDLength   = 32
)

var (
	ErrMissing = errors.New("identity: missing")
	ErrInvalid = errors.New("identity: invalid")
)

type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver trusts a header set by the fronting proxy. The query
// parameter fallback is off unless QueryParam is set; it serves browser
// websocket clients that cannot set headers, and any caller can forge it.
type HeaderResolver struct {
	Header     string
	QueryParam string
}

func (h HeaderResolver) Resolve(r *http.Request) (string, error) {
	header := h.Header
	if header == "" {
		header = DefaultHeader
	}
	raw := r.Header.Get(header)
	if raw == "" && h.QueryParam != "" {
		raw = r.URL.Query().Get(h.QueryParam)
	}
	return Normalize(raw)
}

// TokenResolver maps bearer tokens issued elsewhere to identities.
type TokenResolver struct {
	tokens map[string]string
}

// ParseTokens reads "token:identity" pairs separated by commas.
func ParseTokens(raw string) (*TokenResolver, error) {
	tr := &TokenResolver{tokens: make(map[string]string)}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, id, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(token) == "" {
			return nil, fmt.Errorf("identity: bad token pair %q", pair)
		}
		id, err := Normalize(id)
		if err != nil {
			return nil, err
		}
		tr.tokens[strings.TrimSpace(token)] = id
	}
	if len(tr.tokens) == 0 {
		return nil, fmt.Errorf("identity: no tokens configured")
	}
	return tr, nil
}

func (t *TokenResolver) Resolve(r *http.Request) (string, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return "", ErrMissing
	}
	id, ok := t.tokens[token]
	if !ok {
		return "", ErrInvalid
	}
	return id, nil
}

// Normalize trims raw and checks it is a usable participant id.
func Normalize(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrMissing
	}
	if len(id) > maxIDLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalid, maxIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalid, r)
		}
	}
	return id, nil
}

func bearerToken(raw string) string {
	if !strings.HasPrefix(raw, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}

// NewResolverFromEnv reads IDENTITY_MODE (header or token), IDENTITY_HEADER,
// IDENTITY_QUERY_PARAM and IDENTITY_TOKENS.
func NewResolverFromEnv() (Resolver, string, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("IDENTITY_MODE")))
	switch mode {
	case "", ModeHeader:
		return HeaderResolver{
			Header:     strings.TrimSpace(os.Getenv("IDENTITY_HEADER")),
			QueryParam: strings.TrimSpace(os.Getenv("IDENTITY_QUERY_PARAM")),
		}, ModeHeader, nil
	case ModeToken:
		tr, err := ParseTokens(os.Getenv("IDENTITY_TOKENS"))
		if err != nil {
			return nil, mode, err
		}
		return tr, ModeToken, nil
	default:
		return nil, mode, fmt.Errorf("invalid IDENTITY_MODE %q (supported: %s, %s)", mode, ModeHeader, ModeToken)
	}
}
