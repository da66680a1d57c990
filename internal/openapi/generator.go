// Package openapi builds the OpenAPI 3 document describing the HTTP API.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/sofragment/fragment/internal/codeshot"
	"github.com/sofragment/fragment/internal/model"
)

const (
	securityBearer = "bearerAuth"
	securityAPIKey = "apiKey"
)

// Generate returns the document for the API served at baseURL.
func Generate(baseURL, version string) (*openapi3.T, error) {
	if version == "" {
		version = "1.0.0"
	}
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "fragment API",
			Description: "Accounts, API keys and the codeshot renderer.",
			Version:     version,
		},
		Paths: openapi3.NewPaths(),
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{
		securityAPIKey: &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{Type: "apiKey", In: "header", Name: "X-API-Key"},
		},
		securityBearer: &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		},
	}
	doc.Components = &components

	if err := addSchemas(doc.Components.Schemas); err != nil {
		return nil, err
	}
	addPaths(doc)
	return doc, nil
}

func addSchemas(schemas openapi3.Schemas) error {
	generated := []struct {
		name  string
		value interface{}
	}{
		{"User", model.User{}},
		{"APIKey", model.APIKey{}},
		{"HealthResponse", model.HealthResponse{}},
		{"CodeshotOptions", codeshot.DefaultOptions()},
	}
	for _, g := range generated {
		ref, err := openapi3gen.NewSchemaRefForValue(g.value, nil)
		if err != nil {
			return err
		}
		schemas[g.name] = ref
	}

	annotateCodeshot(schemas["CodeshotOptions"].Value)

	schemas["ErrorResponse"] = object(openapi3.Schemas{
		"error": object(openapi3.Schemas{
			"type": enumString("ValidationError", "AuthenticationError", "AuthorizationError",
				"NotFoundError", "RateLimitError", "DatabaseError", "InternalError"),
			"message": openapi3.NewStringSchema().NewRef(),
			"details": openapi3.NewSchema().NewRef(),
		}, "type", "message"),
	}, "error")

	schemas["AuthResponse"] = object(openapi3.Schemas{
		"user":  ref("User"),
		"token": openapi3.NewStringSchema().NewRef(),
	}, "user", "token")

	schemas["RegisterRequest"] = object(openapi3.Schemas{
		"username": openapi3.NewStringSchema().WithMinLength(3).WithMaxLength(30).WithPattern(`^[A-Za-z0-9_-]+$`).NewRef(),
		"email":    openapi3.NewStringSchema().WithFormat("email").NewRef(),
		"password": openapi3.NewStringSchema().WithMinLength(8).NewRef(),
	}, "username", "email", "password")

	schemas["LoginRequest"] = object(openapi3.Schemas{
		"email":    openapi3.NewStringSchema().WithFormat("email").NewRef(),
		"password": openapi3.NewStringSchema().NewRef(),
	}, "email", "password")

	schemas["CreateKeyRequest"] = object(openapi3.Schemas{
		"name": openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(100).NewRef(),
	}, "name")

	schemas["UpdateProfileRequest"] = object(openapi3.Schemas{
		"username": openapi3.NewStringSchema().WithMinLength(3).WithMaxLength(30).NewRef(),
		"email":    openapi3.NewStringSchema().WithFormat("email").NewRef(),
	})

	schemas["ChangePasswordRequest"] = object(openapi3.Schemas{
		"currentPassword": openapi3.NewStringSchema().NewRef(),
		"newPassword":     openapi3.NewStringSchema().WithMinLength(8).NewRef(),
	}, "currentPassword", "newPassword")

	codeshotReq := openapi3.NewSchema()
	codeshotReq.AllOf = openapi3.SchemaRefs{
		ref("CodeshotOptions"),
		object(openapi3.Schemas{
			"code": openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(codeshot.MaxCodeLength).NewRef(),
		}, "code"),
	}
	schemas["CodeshotRequest"] = codeshotReq.NewRef()
	return nil
}

// annotateCodeshot adds the enumerations and bounds the generator cannot
// derive from the Go types.
func annotateCodeshot(s *openapi3.Schema) {
	setEnum(s, "theme", codeshot.Themes()...)
	setEnum(s, "window", "clean", "browser", "editor")
	if bg := prop(s, "background"); bg != nil {
		setEnum(bg, "style", "solid", "gradient", "pattern")
		if c := prop(bg, "color"); c != nil {
			c.Pattern = `^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`
		}
	}
	if out := prop(s, "output"); out != nil {
		setEnum(out, "format", string(codeshot.FormatPNG), string(codeshot.FormatJPEG), string(codeshot.FormatSVG))
		setRange(out, "quality", 1, 100)
		setRange(out, "width", 100, 4000)
		setRange(out, "height", 100, 4000)
	}
	if font := prop(s, "font"); font != nil {
		setRange(font, "size", 8, 32)
	}
	if dev := prop(s, "developer"); dev != nil {
		setRange(dev, "tabSize", 2, 8)
	}
	setRange(s, "padding", 0, 128)
	if hl := prop(s, "highlight"); hl != nil {
		maxItems := uint64(codeshot.MaxHighlightLines)
		hl.MaxItems = &maxItems
	}
}

func prop(s *openapi3.Schema, name string) *openapi3.Schema {
	if s == nil || s.Properties[name] == nil {
		return nil
	}
	return s.Properties[name].Value
}

func setEnum(s *openapi3.Schema, name string, values ...string) {
	if p := prop(s, name); p != nil {
		p.Enum = make([]interface{}, len(values))
		for i, v := range values {
			p.Enum[i] = v
		}
	}
}

func setRange(s *openapi3.Schema, name string, min, max float64) {
	if p := prop(s, name); p != nil {
		p.Min = &min
		p.Max = &max
	}
}

func object(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	s := openapi3.NewObjectSchema()
	s.Properties = props
	s.Required = required
	return s.NewRef()
}

func enumString(values ...string) *openapi3.SchemaRef {
	s := openapi3.NewStringSchema()
	for _, v := range values {
		s.Enum = append(s.Enum, v)
	}
	return s.NewRef()
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}
