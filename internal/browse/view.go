package browse

import (
	"stacnav/internal/navigation"
	"stacnav/internal/session"
	"stacnav/internal/validate"
	"stacnav/pkg/models"
)

type AncestorView struct {
	URI   string             `json:"uri"`
	Slug  string             `json:"slug"`
	State models.EntityState `json:"state"`
	Title string             `json:"title,omitempty"`
	Error string             `json:"error,omitempty"`
}

type RecordView struct {
	models.EntityRecord
	Error string `json:"error,omitempty"`
}

type LinkView struct {
	Rel   string `json:"rel"`
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
	Route string `json:"route"`
}

type NavView struct {
	Kind      validate.Kind  `json:"kind"`
	Path      string         `json:"path"`
	Hash      string         `json:"hash,omitempty"`
	URL       string         `json:"url"`
	Center    []string       `json:"center,omitempty"`
	Ancestors []AncestorView `json:"ancestors"`
	Target    RecordView     `json:"target"`
	Children  []LinkView     `json:"children"`
	Failed    []string       `json:"failed,omitempty"`
}

func recordView(rec models.EntityRecord) RecordView {
	return RecordView{EntityRecord: rec, Error: rec.ErrorText()}
}

func buildView(s *session.Session, route navigation.Route, d navigation.Decision) NavView {
	chain := s.Chain(route)

	v := NavView{
		Kind:      route.Kind,
		Path:      route.Path,
		Hash:      route.Hash,
		URL:       route.URL,
		Center:    route.Center,
		Ancestors: make([]AncestorView, 0, len(chain)),
		Children:  []LinkView{},
	}
	for _, rec := range chain {
		v.Ancestors = append(v.Ancestors, AncestorView{
			URI:   rec.URI,
			Slug:  s.Codec.Slugify(rec.URI),
			State: rec.State,
			Title: rec.Document.String("title"),
			Error: rec.ErrorText(),
		})
	}
	for _, rec := range d.Prefetch.Failed() {
		v.Failed = append(v.Failed, rec.URI)
	}

	target := chain[len(chain)-1]
	v.Target = recordView(target)
	if target.State == models.StateLoaded {
		v.Children = childLinks(s, route, target.Document)
	}
	return v
}

// childLinks lists the child and item links of doc as routes nested under
// route. Links whose href does not resolve are skipped.
func childLinks(s *session.Session, route navigation.Route, doc models.Document) []LinkView {
	raw, _ := doc["links"].([]any)
	out := make([]LinkView, 0, len(raw))

	for _, l := range raw {
		link, ok := l.(map[string]any)
		if !ok {
			continue
		}
		m := models.Document(link)
		rel := m.String("rel")

		var kind validate.Kind
		switch rel {
		case "child":
			kind = validate.KindCatalog
		case "item":
			kind = validate.KindItem
		default:
			continue
		}

		href, err := s.Resolver.Resolve(m.String("href"), route.URL)
		if err != nil || m.String("href") == "" {
			continue
		}
		out = append(out, LinkView{
			Rel:   rel,
			URI:   href,
			Title: m.String("title"),
			Route: s.Router.Child(route, kind, href),
		})
	}
	return out
}
