// Package resolve maps module keys, as written in a document, to loadable URIs.
//
// Resolution follows one of two branches:
//
//   - Alias: a key starting with a registered %name% token has the token and
//     its trailing separator replaced by the registered URI prefix.
//   - Relative: any other key is rebased one directory up from the document,
//     and a configured nonce is attached as a query parameter.
//
// When the document location requests debug mode, every resolved URI also
// carries debug=1 and a fresh random correlation value.
package resolve

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// aliasMarker wraps alias names at the start of a key.
const aliasMarker = '%'

// Config is the explicit configuration of a Resolver.
type Config struct {
	// Aliases maps alias names (without markers) to URI prefixes.
	Aliases map[string]string
	// Nonce is attached to relative keys as nonce=<value> when non-empty.
	Nonce string
	// Location is the document's URL. Only its query string is consulted.
	Location string
}

// Resolver resolves module keys. It is safe for concurrent use.
type Resolver struct {
	aliases map[string]string
	nonce   string
	debug   bool
}

// New validates cfg and creates a Resolver. The alias table is copied.
func New(cfg Config) (*Resolver, error) {
	aliases := make(map[string]string, len(cfg.Aliases))
	for name, prefix := range cfg.Aliases {
		if name == "" || strings.ContainsAny(name, "%/") {
			return nil, errors.NewValidationError(errors.ErrInvalidConfig, "resolve.aliases", name, "alias name must be non-empty and contain no '%' or '/'")
		}
		if prefix == "" {
			return nil, errors.NewValidationError(errors.ErrInvalidConfig, "resolve.aliases."+name, prefix, "alias prefix must not be empty")
		}
		aliases[name] = prefix
	}

	debug, err := debugRequested(cfg.Location)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrInvalidConfig, "resolve.location", cfg.Location, err.Error())
	}

	return &Resolver{
		aliases: aliases,
		nonce:   cfg.Nonce,
		debug:   debug,
	}, nil
}

// Debug reports whether the document location requested debug mode.
func (r *Resolver) Debug() bool {
	return r.debug
}

// Resolve returns the loadable URI for key. It never fails; malformed or
// unknown aliases fall through to the relative branch.
func (r *Resolver) Resolve(key request.Key) string {
	s := string(key)

	var params []string
	uri, ok := r.expandAlias(s)
	if !ok {
		uri = rebase(s)
		if r.nonce != "" {
			params = append(params, "nonce="+url.QueryEscape(r.nonce))
		}
	}
	if r.debug {
		params = append(params, "debug=1", "rnd="+correlationID())
	}
	return appendQuery(uri, params)
}

// expandAlias substitutes a leading %name% token and one trailing '/'.
func (r *Resolver) expandAlias(key string) (string, bool) {
	if len(key) < 2 || key[0] != aliasMarker {
		return "", false
	}
	end := strings.IndexByte(key[1:], aliasMarker)
	if end <= 0 {
		return "", false
	}
	name := key[1 : end+1]
	prefix, ok := r.aliases[name]
	if !ok {
		return "", false
	}
	rest := strings.TrimPrefix(key[end+2:], "/")
	return prefix + rest, true
}

// rebase moves a document-relative key one directory up. Rooted paths and
// keys carrying a scheme are returned unchanged.
func rebase(key string) string {
	switch {
	case strings.HasPrefix(key, "./"):
		return "../" + key[2:]
	case strings.HasPrefix(key, "/"), hasScheme(key):
		return key
	default:
		return "../" + key
	}
}

// hasScheme reports whether key starts with an RFC 3986 scheme followed by ':'.
func hasScheme(key string) bool {
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		case c == ':':
			return i > 0
		default:
			return false
		}
	}
	return false
}

// appendQuery appends params to uri's query, keeping any existing query text
// and fragment intact.
func appendQuery(uri string, params []string) string {
	if len(params) == 0 {
		return uri
	}

	fragment := ""
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		uri, fragment = uri[:i], uri[i:]
	}

	sep := "?"
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		sep = "&"
		if i == len(uri)-1 || strings.HasSuffix(uri, "&") {
			sep = ""
		}
	}
	return uri + sep + strings.Join(params, "&") + fragment
}

// debugRequested reports whether location's query carries a truthy debug flag.
func debugRequested(location string) (bool, error) {
	if location == "" {
		return false, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return false, fmt.Errorf("invalid location: %w", err)
	}
	values, ok := u.Query()["debug"]
	if !ok {
		return false, nil
	}
	for _, v := range values {
		switch strings.ToLower(v) {
		case "", "1", "true":
			return true, nil
		}
	}
	return false, nil
}

// correlationID returns 16 random hex characters.
// Falls back to a timestamp if crypto/rand fails.
func correlationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
