// Package docs registers the OpenAPI document of the billing API with swag,
// where gin-swagger serves it as /swagger/doc.json. swagger.json follows the
// handler annotations; keep both in step when a route changes.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag/v2"
)

//go:embed swagger.json
var swaggerJSON string

type document struct{}

// ReadDoc returns the OpenAPI document
func (document) ReadDoc() string {
	return swaggerJSON
}

func init() {
	swag.Register(swag.Name, document{})
}
