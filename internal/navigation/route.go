// Package navigation turns hash-route paths into ancestor chains and guards
// route transitions: a transition completes only after every resource on the
// destination's chain has been loaded or has failed.
package navigation

import (
	"strings"

	"stacnav/internal/slug"
	"stacnav/internal/validate"
)

const (
	itemPrefix       = "/item"
	collectionPrefix = "/collection"
)

// Route is a matched navigation target.
type Route struct {
	Kind     validate.Kind `json:"kind"`
	Path     string        `json:"path"`
	Segments []string      `json:"segments,omitempty"`
	Hash     string        `json:"hash,omitempty"`

	// Ancestors starts at the root catalog and holds one URI per segment.
	Ancestors []string `json:"ancestors"`
	// URL is the last ancestor: the resource the route shows.
	URL string `json:"url"`
	// Center is the map center carried by an item route's fragment.
	Center []string `json:"center,omitempty"`
}

// HasSegments reports whether the route encodes anything below the root.
func (r Route) HasSegments() bool { return len(r.Segments) > 0 }

// SplitRoute matches path against /item/<segments>, /collection/<segments>
// and the catch-all /<segments>, without decoding anything.
func SplitRoute(path string) (validate.Kind, []string) {
	if path == "" {
		path = "/"
	}
	kind := validate.KindCatalog
	rest := path

	switch {
	case matchPrefix(path, itemPrefix):
		kind, rest = validate.KindItem, path[len(itemPrefix):]
	case matchPrefix(path, collectionPrefix):
		kind, rest = validate.KindCollection, path[len(collectionPrefix):]
	}

	rest = strings.Trim(rest, "/")
	if rest == "" {
		return kind, nil
	}
	return kind, strings.Split(rest, "/")
}

func matchPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Router matches paths for one session's root catalog.
type Router struct {
	codec *slug.Codec
	root  string
	base  string
}

// NewRouter binds a router to codec. base is the index path that generated
// links are mounted under; "" or "/" mount them at the top.
func NewRouter(codec *slug.Codec, root, base string) *Router {
	base = strings.TrimRight(base, "/")
	return &Router{codec: codec, root: root, base: base}
}

// Match resolves path and the raw fragment (with or without the leading #)
// into a Route. Segments that do not decode stand for the root catalog.
func (r *Router) Match(path, hash string) Route {
	if path == "" {
		path = "/"
	}
	kind, segments := SplitRoute(path)
	hash = strings.TrimPrefix(hash, "#")

	ancestors := make([]string, 0, len(segments)+1)
	ancestors = append(ancestors, r.root)
	ancestors = append(ancestors, r.codec.DecodeAll(segments)...)

	route := Route{
		Kind:      kind,
		Path:      path,
		Segments:  segments,
		Hash:      hash,
		Ancestors: ancestors,
		URL:       ancestors[len(ancestors)-1],
	}
	if kind == validate.KindItem && hash != "" {
		route.Center = strings.Split(hash, "/")
	}
	return route
}

// Link builds the route path for kind whose chain below the root is uris.
func (r *Router) Link(kind validate.Kind, uris ...string) string {
	var b strings.Builder
	b.WriteString(r.base)
	switch kind {
	case validate.KindItem:
		b.WriteString(itemPrefix)
	case validate.KindCollection:
		b.WriteString(collectionPrefix)
	}
	if len(uris) > 0 {
		b.WriteString("/")
		b.WriteString(r.codec.Path(uris...))
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// Child returns the link to a child resource of route. Items get an item
// route; anything else nests as a catalog route.
func (r *Router) Child(route Route, kind validate.Kind, childURI string) string {
	if kind != validate.KindItem {
		kind = validate.KindCatalog
	}
	chain := append(append([]string{}, route.Ancestors[1:]...), childURI)
	return r.Link(kind, chain...)
}

// Strip removes the index path from path so it can be matched.
func (r *Router) Strip(path string) string {
	if r.base == "" {
		return path
	}
	if path == r.base {
		return "/"
	}
	if strings.HasPrefix(path, r.base+"/") {
		return path[len(r.base):]
	}
	return path
}
