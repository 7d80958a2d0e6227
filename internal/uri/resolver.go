// Package uri resolves catalog references against the root catalog and
// computes root-relative locations for same-host resources.
package uri

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURI is matched by every *InvalidURIError.
var ErrInvalidURI = errors.New("invalid uri")

type InvalidURIError struct {
	Ref string
	Err error
}

func (e *InvalidURIError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid uri %q", e.Ref)
	}
	return fmt.Sprintf("invalid uri %q: %v", e.Ref, e.Err)
}

func (e *InvalidURIError) Unwrap() error { return e.Err }

func (e *InvalidURIError) Is(target error) bool { return target == ErrInvalidURI }

// Resolver is bound to one root catalog URI for the lifetime of a session.
type Resolver struct {
	root    *url.URL
	rootRaw string
	rootDir string
}

func NewResolver(rootURI string) (*Resolver, error) {
	u, err := url.Parse(strings.TrimSpace(rootURI))
	if err != nil {
		return nil, &InvalidURIError{Ref: rootURI, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &InvalidURIError{Ref: rootURI, Err: errors.New("root catalog must be an absolute url")}
	}

	// containing directory = root path minus its last segment
	dir := u.EscapedPath()
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	}
	if dir == "" {
		dir = "/"
	}

	return &Resolver{root: u, rootRaw: u.String(), rootDir: dir}, nil
}

// Root returns the canonical root catalog URI.
func (r *Resolver) Root() string { return r.rootRaw }

// Resolve applies RFC 3986 reference resolution of href against base.
// An empty base means the root catalog.
func (r *Resolver) Resolve(href, base string) (string, error) {
	b := r.root
	if base != "" && base != r.rootRaw {
		parsed, err := url.Parse(base)
		if err != nil {
			return "", &InvalidURIError{Ref: base, Err: err}
		}
		if !parsed.IsAbs() {
			return "", &InvalidURIError{Ref: base, Err: errors.New("base must be absolute")}
		}
		b = parsed
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", &InvalidURIError{Ref: href, Err: err}
	}
	return b.ResolveReference(ref).String(), nil
}

// ResolveRoot resolves href against the root catalog.
func (r *Resolver) ResolveRoot(href string) (string, error) {
	return r.Resolve(href, "")
}

// MakeRelative returns raw relative to the root catalog's directory when it
// shares the root's origin: scheme, host with port, and userinfo. Other
// origins, paths that resolution would rewrite, and references that do not
// parse come back unchanged, so resolving the result always yields what
// resolving raw would.
func (r *Resolver) MakeRelative(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !r.sameOrigin(u) {
		return raw
	}

	p := u.EscapedPath()
	if !relativizable(p) {
		return raw
	}
	rel := relativePath(r.rootDir, p)

	// a colon in the first segment would read back as a scheme
	if first, _, _ := strings.Cut(rel, "/"); strings.Contains(first, ":") {
		rel = "./" + rel
	}

	if u.RawQuery != "" || u.ForceQuery {
		rel += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		rel += "#" + u.EscapedFragment()
	}
	return rel
}

func (r *Resolver) sameOrigin(u *url.URL) bool {
	if u.Opaque != "" || u.Scheme != r.root.Scheme || u.Host != r.root.Host {
		return false
	}
	if (u.User == nil) != (r.root.User == nil) {
		return false
	}
	return u.User == nil || u.User.String() == r.root.User.String()
}

// relativizable reports whether p is a non-empty absolute path free of
// empty and dot segments, which relativePath would otherwise fold away.
func relativizable(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	segs := strings.Split(p[1:], "/")
	for i, s := range segs {
		switch s {
		case ".", "..":
			return false
		case "":
			// only a trailing slash may leave an empty segment
			if i != len(segs)-1 {
				return false
			}
		}
	}
	return true
}

// relativePath mirrors POSIX path.relative for absolute paths, keeping a
// trailing slash on the target and never producing an empty result, so that
// resolving the output against the root lands back on target.
func relativePath(from, to string) string {
	fromParts := splitClean(from)
	toParts := splitClean(to)

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	parts := make([]string, 0, len(fromParts)-common+len(toParts)-common)
	for i := common; i < len(fromParts); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[common:]...)

	rel := strings.Join(parts, "/")
	dirTarget := strings.HasSuffix(to, "/")

	switch {
	case rel == "" && dirTarget:
		return "./"
	case rel == "":
		// target is the root directory itself, written without a slash
		if len(toParts) == 0 {
			return "/"
		}
		return "../" + toParts[len(toParts)-1]
	case dirTarget:
		return rel + "/"
	}
	return rel
}

func splitClean(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
