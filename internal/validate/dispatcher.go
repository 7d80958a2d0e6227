// Package validate picks the schema validator for a catalog document from its
// declared STAC version and its kind, and reports validation errors as data.
package validate

import (
	"context"
	"fmt"
	"slices"

	"stacnav/pkg/models"
)

type Kind string

const (
	KindCatalog    Kind = "catalog"
	KindCollection Kind = "collection"
	KindItem       Kind = "item"
)

// DefaultVersion is assumed for documents that predate stac_version.
const DefaultVersion = "0.7.0"

type ValidationError struct {
	Field       string `json:"field"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// Validator checks one document. Errors reports the failures of the most
// recent Validate call.
type Validator interface {
	Validate(doc models.Document) bool
	Errors() []ValidationError
}

// Provider hands out validators by kind and STAC version.
type Provider interface {
	Validator(ctx context.Context, kind Kind, version string) (Validator, error)
}

// Func validates a document. A nil slice with a nil error means the document
// is valid.
type Func func(ctx context.Context, doc models.Document) ([]ValidationError, error)

type Dispatcher struct {
	provider Provider
}

func NewDispatcher(p Provider) *Dispatcher {
	return &Dispatcher{provider: p}
}

// Version returns the document's stac_version, or DefaultVersion.
func Version(doc models.Document) string {
	if v := doc.String("stac_version"); v != "" {
		return v
	}
	return DefaultVersion
}

// InferKind turns a catalog request into a collection one when the document
// carries collection fields. Other kinds are returned as requested.
func InferKind(requested Kind, doc models.Document) Kind {
	if requested == KindCatalog && (doc.Has("license") || doc.Has("extent")) {
		return KindCollection
	}
	return requested
}

// Validate runs the validator for kind (after inference) and the document's
// version. It returns nil when the document is valid, and a copy of the
// validator's error list otherwise.
func (d *Dispatcher) Validate(ctx context.Context, kind Kind, doc models.Document) ([]ValidationError, error) {
	kind = InferKind(kind, doc)
	version := Version(doc)

	v, err := d.provider.Validator(ctx, kind, version)
	if err != nil {
		return nil, fmt.Errorf("%s validator for %s: %w", kind, version, err)
	}
	if v.Validate(doc) {
		return nil, nil
	}

	errs := slices.Clone(v.Errors())
	if errs == nil {
		errs = []ValidationError{}
	}
	return errs, nil
}

func (d *Dispatcher) ItemValidator(ctx context.Context, doc models.Document) ([]ValidationError, error) {
	return d.Validate(ctx, KindItem, doc)
}

func (d *Dispatcher) CollectionValidator(ctx context.Context, doc models.Document) ([]ValidationError, error) {
	return d.Validate(ctx, KindCollection, doc)
}

// CatalogValidator validates as a collection when the document looks like one.
func (d *Dispatcher) CatalogValidator(ctx context.Context, doc models.Document) ([]ValidationError, error) {
	return d.Validate(ctx, KindCatalog, doc)
}

// For returns the named validator bound to kind.
func (d *Dispatcher) For(kind Kind) Func {
	switch kind {
	case KindItem:
		return d.ItemValidator
	case KindCollection:
		return d.CollectionValidator
	default:
		return d.CatalogValidator
	}
}
