// Package spec ships the OpenAPI description of the HTTP API as an
// embedded asset, served at /openapi.yaml.
package spec

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
