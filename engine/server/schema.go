package server

import (
	_ "embed"

	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/graph-gophers/graphql-go"
)

//go:embed schema.graphql
var schemaSource string

// NewSchema parses the API schema against resolvers backed by m.
//
// Parameters:
//   - m: the model requests are sent to
//
// Returns:
//   - *graphql.Schema: the executable schema
func NewSchema(m model.Model) *graphql.Schema {
	if m == nil {
		panic("server: nil model")
	}
	return graphql.MustParseSchema(schemaSource, &resolver{model: m})
}
