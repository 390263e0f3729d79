// Package api carries the embedded OpenAPI contract for the HTTP surface.
package api

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
