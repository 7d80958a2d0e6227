// Package slug maps catalog URIs to compact URL-safe tokens used as route
// path segments, and back.
//
// A token is the base58 encoding of the URI's location relative to the root
// catalog's directory. URIs on a foreign host are encoded verbatim. Decoding
// is fail-soft: a corrupted token degrades to the root catalog.
package slug

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"stacnav/internal/uri"
)

var ErrDecodeFailure = errors.New("slug decode failure")

type DecodeError struct {
	Token string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode slug %q: %v", e.Token, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecodeFailure }

type Codec struct {
	resolver *uri.Resolver
	log      logrus.FieldLogger
}

// NewCodec binds a codec to the session's resolver. A nil logger uses the
// standard logrus logger.
func NewCodec(resolver *uri.Resolver, log logrus.FieldLogger) *Codec {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Codec{resolver: resolver, log: log.WithField("component", "slug")}
}

func (c *Codec) Slugify(u string) string {
	return base58.Encode([]byte(c.resolver.MakeRelative(u)))
}

// DecodeStrict reports every failure as a *DecodeError.
func (c *Codec) DecodeStrict(token string) (string, error) {
	if token == "" {
		return c.resolver.Root(), nil
	}

	b, err := base58.Decode(token)
	if err != nil {
		return "", &DecodeError{Token: token, Err: err}
	}
	if !utf8.Valid(b) {
		return "", &DecodeError{Token: token, Err: errors.New("decoded bytes are not valid utf-8")}
	}

	resolved, err := c.resolver.ResolveRoot(string(b))
	if err != nil {
		return "", &DecodeError{Token: token, Err: err}
	}
	return resolved, nil
}

// Decode never fails: tokens that do not decode are logged and replaced by
// the root catalog URI.
func (c *Codec) Decode(token string) string {
	resolved, err := c.DecodeStrict(token)
	if err != nil {
		c.log.WithError(err).Warn("falling back to root catalog")
		return c.resolver.Root()
	}
	return resolved
}

// DecodeAll decodes each segment of a slash-joined token path.
func (c *Codec) DecodeAll(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		out = append(out, c.Decode(s))
	}
	return out
}

// Path joins the slugs of uris into a route path suffix.
func (c *Codec) Path(uris ...string) string {
	parts := make([]string, 0, len(uris))
	for _, u := range uris {
		parts = append(parts, c.Slugify(u))
	}
	return strings.Join(parts, "/")
}
