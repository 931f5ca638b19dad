// Package schema provides JSON Schema generation for tool parameters.
package schema

import (
	"github.com/invopop/jsonschema"
)

// Reflector is configured for tool parameter schemas. DoNotReference
// inlines all definitions so providers never see $ref.
var Reflector = &jsonschema.Reflector{
	DoNotReference: true,
}

// Reflect derives the parameter schema for a Go type. The type should be a
// struct with json and jsonschema tags.
//
// Example:
//
//	type WeatherInput struct {
//	    Location string `json:"location" jsonschema:"required,description=A location to fetch the weather for"`
//	}
//
//	s := schema.Reflect[WeatherInput]()
func Reflect[T any]() *jsonschema.Schema {
	var zero T
	return Reflector.Reflect(&zero)
}
