package validate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/singleflight"

	"stacnav/pkg/models"
)

// DefaultSchemaURLTemplate points at the published STAC JSON schemas.
const DefaultSchemaURLTemplate = "https://schemas.stacspec.org/v{version}/{kind}-spec/json-schema/{kind}.json"

// SchemaProvider compiles JSON schemas located through a URL template with
// {kind} and {version} placeholders. Compiled schemas are cached for the life
// of the provider; failed compilations are retried on the next request.
type SchemaProvider struct {
	template string
	log      logrus.FieldLogger

	group   singleflight.Group
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaProvider(urlTemplate string, log logrus.FieldLogger) *SchemaProvider {
	if urlTemplate == "" {
		urlTemplate = DefaultSchemaURLTemplate
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SchemaProvider{
		template: urlTemplate,
		log:      log.WithField("component", "validate"),
		schemas:  make(map[string]*gojsonschema.Schema),
	}
}

// SchemaURL expands the template for kind and version.
func (p *SchemaProvider) SchemaURL(kind Kind, version string) string {
	return strings.NewReplacer("{kind}", string(kind), "{version}", version).Replace(p.template)
}

func (p *SchemaProvider) Validator(ctx context.Context, kind Kind, version string) (Validator, error) {
	url := p.SchemaURL(kind, version)

	p.mu.RLock()
	schema, ok := p.schemas[url]
	p.mu.RUnlock()
	if ok {
		return &schemaValidator{schema: schema}, nil
	}

	ch := p.group.DoChan(url, func() (any, error) {
		p.log.WithField("schema", url).Debug("compiling schema")
		s, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader(url))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", url, err)
		}
		p.mu.Lock()
		p.schemas[url] = s
		p.mu.Unlock()
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return &schemaValidator{schema: res.Val.(*gojsonschema.Schema)}, nil
	}
}

// schemaValidator is handed out per call so that its error list belongs to
// a single caller.
type schemaValidator struct {
	schema *gojsonschema.Schema
	errs   []ValidationError
}

func (v *schemaValidator) Validate(doc models.Document) bool {
	v.errs = nil

	res, err := v.schema.Validate(gojsonschema.NewGoLoader(map[string]any(doc)))
	if err != nil {
		v.errs = []ValidationError{{Field: "(root)", Type: "schema_error", Description: err.Error()}}
		return false
	}
	if res.Valid() {
		return true
	}

	for _, re := range res.Errors() {
		v.errs = append(v.errs, ValidationError{
			Field:       re.Field(),
			Type:        re.Type(),
			Description: re.Description(),
		})
	}
	return false
}

func (v *schemaValidator) Errors() []ValidationError { return v.errs }
