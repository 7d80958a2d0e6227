package navigation

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// PersistedState is the state blob a server-rendered page embeds in
// <script class="state" type="application/json">.
type PersistedState struct {
	Path   string                     `json:"path"`
	Values map[string]json.RawMessage `json:"-"`
}

// ParsePersistedJSON decodes a state blob. Malformed input yields the zero
// state.
func ParsePersistedJSON(b []byte, log logrus.FieldLogger) PersistedState {
	var st PersistedState
	if len(strings.TrimSpace(string(b))) == 0 {
		return st
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		logger(log).WithError(err).Warn("unable to parse rendered state")
		return PersistedState{}
	}
	if p, ok := raw["path"]; ok {
		if err := json.Unmarshal(p, &st.Path); err != nil {
			logger(log).WithError(err).Warn("rendered state path is not a string")
		}
	}
	st.Values = raw
	return st
}

// ParsePersistedState extracts the state blob from an HTML page. A page
// without one, or with one that does not parse, yields the zero state.
func ParsePersistedState(r io.Reader, log logrus.FieldLogger) PersistedState {
	z := html.NewTokenizer(r)
	inState := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				logger(log).WithError(err).Warn("unable to read rendered page")
			}
			return PersistedState{}
		case html.StartTagToken:
			tok := z.Token()
			inState = tok.Data == "script" && isStateScript(tok.Attr)
		case html.TextToken:
			if inState {
				return ParsePersistedJSON(z.Text(), log)
			}
		case html.EndTagToken:
			if inState {
				// empty state script
				return PersistedState{}
			}
		}
	}
}

func isStateScript(attrs []html.Attribute) bool {
	hasClass, isJSON := false, false
	for _, a := range attrs {
		switch a.Key {
		case "class":
			for _, c := range strings.Fields(a.Val) {
				if c == "state" {
					hasClass = true
				}
			}
		case "type":
			isJSON = a.Val == "application/json"
		}
	}
	return hasClass && isJSON
}

func logger(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger().WithField("component", "navigation")
	}
	return log
}

// Reconciler redirects the first guarded transition of a session to the
// server-rendered path when the two differ only by case or a trailing slash.
type Reconciler struct {
	persisted string

	mu       sync.Mutex
	consumed bool
}

func NewReconciler(state PersistedState) *Reconciler {
	return &Reconciler{persisted: state.Path}
}

// Persisted returns the server-rendered path, or "".
func (r *Reconciler) Persisted() string {
	if r == nil {
		return ""
	}
	return r.persisted
}

// Redirect reports the path to redirect to instead of toPath. Only the first
// call can redirect.
func (r *Reconciler) Redirect(toPath string) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.Lock()
	first := !r.consumed
	r.consumed = true
	r.mu.Unlock()

	if !first || r.persisted == "" {
		return "", false
	}

	trimmed := strings.TrimSuffix(toPath, "/")
	if r.persisted != trimmed && strings.EqualFold(r.persisted, trimmed) {
		return r.persisted, true
	}
	return "", false
}
