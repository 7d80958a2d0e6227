package navigation

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Decision is the outcome of a guarded transition.
type Decision struct {
	// Redirect, when set, replaces the destination path.
	Redirect string
	Prefetch PrefetchResult
}

func (d Decision) Proceed() bool { return d.Redirect == "" }

// Guard runs before every route transition of a session.
type Guard struct {
	prefetcher *Prefetcher
	reconciler *Reconciler
	log        logrus.FieldLogger
}

// NewGuard builds a guard. reconciler may be nil when the session has no
// server-rendered state.
func NewGuard(prefetcher *Prefetcher, reconciler *Reconciler, log logrus.FieldLogger) *Guard {
	return &Guard{prefetcher: prefetcher, reconciler: reconciler, log: logger(log)}
}

// BeforeEach decides the transition from -> to. Same-path transitions
// proceed untouched. Otherwise the destination either gets redirected to the
// persisted path or has its ancestor chain prefetched before proceeding.
// Validation is left to the views.
func (g *Guard) BeforeEach(ctx context.Context, to, from Route) Decision {
	if to.Path == from.Path {
		return Decision{}
	}

	if target, ok := g.reconciler.Redirect(to.Path); ok {
		g.log.WithFields(logrus.Fields{"from": to.Path, "to": target}).Info("redirecting to rendered path")
		return Decision{Redirect: target}
	}

	if !to.HasSegments() || len(to.Ancestors) < 2 {
		return Decision{}
	}

	// chain order reversed: deepest resource first
	chain := to.Ancestors[1:]
	uris := make([]string, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		uris = append(uris, chain[i])
	}

	return Decision{Prefetch: g.prefetcher.Prefetch(ctx, uris)}
}
