// Package browse serves the navigation API: guarded route transitions,
// validation of loaded documents, and the slug codec helpers.
package browse

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stacnav/internal/entity"
	"stacnav/internal/navigation"
	"stacnav/internal/session"
	"stacnav/pkg/models"
)

const maxStateBytes = 1 << 20

// HistoryLister is the read side of the navigation log.
type HistoryLister interface {
	List(ctx context.Context, sessionID string, limit, offset int) ([]models.NavigationEntry, int, error)
}

// Readiness reports the latest root catalog probe.
type Readiness interface {
	Root() (models.EntityRecord, bool)
}

type Handler struct {
	History HistoryLister
	Ready   Readiness
	log     logrus.FieldLogger
}

// NewHandler builds a handler. history may be nil when the log is disabled.
func NewHandler(history HistoryLister, ready Readiness, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{History: history, Ready: ready, log: log.WithField("component", "browse")}
}

// RegisterProbes mounts the session-free endpoints.
func (h *Handler) RegisterProbes(r gin.IRoutes) {
	r.GET("/health", h.health)
	r.GET("/ready", h.ready)
}

// RegisterRoutes mounts the session-bound endpoints. start may create a
// session (session.Middleware) and guards only the routes that begin
// browsing; attach requires an existing one (session.Require).
func (h *Handler) RegisterRoutes(rg gin.IRoutes, start, attach gin.HandlerFunc) {
	rg.GET("/nav/*path", start, h.nav) // GET /nav/item/<slug>/<slug>?hash=
	rg.POST("/session/state", start, h.sessionState)

	rg.GET("/validate/*path", attach, h.validate) // GET /validate/collection/<slug>
	rg.GET("/entity", attach, h.entity)           // GET /entity?uri=
	rg.GET("/slug", attach, h.slug)               // GET /slug?uri=
	rg.GET("/decode", attach, h.decode)           // GET /decode?token=
	rg.GET("/history", attach, h.history)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ready(c *gin.Context) {
	if h.Ready == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	rec, ok := h.Ready.Root()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"root":   rec.URI,
			"state":  rec.State,
			"error":  rec.ErrorText(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "root": rec.URI, "state": rec.State})
}

func (h *Handler) nav(c *gin.Context) {
	s := session.MustGet(c)
	path := s.Router.Strip(c.Param("path"))

	route, d := s.Navigate(c.Request.Context(), path, c.Query("hash"))
	if !d.Proceed() {
		c.Header("Location", "/nav"+d.Redirect)
		c.JSON(http.StatusTemporaryRedirect, gin.H{"redirect": d.Redirect})
		return
	}

	c.JSON(http.StatusOK, buildView(s, route, d))
}

func (h *Handler) validate(c *gin.Context) {
	s := session.MustGet(c)
	route := s.Router.Match(s.Router.Strip(c.Param("path")), "")

	rec, _ := s.Store.Get(route.URL)
	switch rec.State {
	case models.StateLoaded:
	case models.StateFailed:
		c.JSON(http.StatusBadGateway, gin.H{
			"error": rec.ErrorText(),
			"kind":  entity.FailureKind(rec.Err),
			"uri":   rec.URI,
		})
		return
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "document not loaded", "uri": rec.URI, "state": rec.State})
		return
	}

	errs, err := s.Dispatcher.For(route.Kind)(c.Request.Context(), rec.Document)
	if err != nil {
		h.log.WithError(err).WithField("uri", rec.URI).Warn("validation unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "uri": rec.URI})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uri":    rec.URI,
		"kind":   route.Kind,
		"valid":  errs == nil,
		"errors": errs,
	})
}

func (h *Handler) entity(c *gin.Context) {
	s := session.MustGet(c)
	u := strings.TrimSpace(c.Query("uri"))
	if u == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri required"})
		return
	}

	rec, ok := s.Store.Get(u)
	if !ok {
		c.JSON(http.StatusNotFound, recordView(rec))
		return
	}
	c.JSON(http.StatusOK, recordView(rec))
}

func (h *Handler) slug(c *gin.Context) {
	s := session.MustGet(c)
	u, err := s.Resolver.ResolveRoot(strings.TrimSpace(c.Query("uri")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uri": u, "slug": s.Codec.Slugify(u)})
}

func (h *Handler) decode(c *gin.Context) {
	s := session.MustGet(c)
	token := c.Query("token")

	u, err := s.Codec.DecodeStrict(token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"token": token, "uri": s.Codec.Decode(token), "fallback": true, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "uri": u, "fallback": false})
}

func (h *Handler) history(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	s := session.MustGet(c)
	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)

	items, total, err := h.History.List(c.Request.Context(), s.ID, limit, offset)
	if err != nil {
		h.log.WithError(err).Error("list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

// sessionState seeds the reconciler from either the rendered page or its
// bare JSON state blob.
func (h *Handler) sessionState(c *gin.Context) {
	s := session.MustGet(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStateBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}

	var st navigation.PersistedState
	mt, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mt == "application/json" {
		st = navigation.ParsePersistedJSON(body, h.log)
	} else {
		st = navigation.ParsePersistedState(bytes.NewReader(body), h.log)
	}

	s.SetPersistedState(st)
	c.JSON(http.StatusOK, gin.H{"path": s.Persisted()})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
