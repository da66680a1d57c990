package openapi

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

type endpoint struct {
	method   string
	path     string
	id       string
	tag      string
	summary  string
	security []string
	params   []string
	body     string
	status   int
	response *openapi3.SchemaRef
	content  []string
}

var imageTypes = []string{"image/png", "image/jpeg", "image/svg+xml"}

func endpoints() []endpoint {
	return []endpoint{
		{method: http.MethodGet, path: "/api/health", id: "health", tag: "system",
			summary: "Liveness probe", status: 200, response: ref("HealthResponse")},
		{method: http.MethodGet, path: "/api/ready", id: "ready", tag: "system",
			summary: "Readiness probe including the database", status: 200,
			response: openapi3.NewObjectSchema().NewRef()},

		{method: http.MethodPost, path: "/api/auth/register", id: "register", tag: "auth",
			summary: "Create an account", body: "RegisterRequest", status: 201, response: ref("AuthResponse")},
		{method: http.MethodPost, path: "/api/auth/login", id: "login", tag: "auth",
			summary: "Exchange credentials for a token", body: "LoginRequest", status: 200, response: ref("AuthResponse")},

		{method: http.MethodPost, path: "/api/keys", id: "createKey", tag: "keys",
			summary: "Issue an API key; the key is returned once", security: []string{securityBearer},
			body: "CreateKeyRequest", status: 201, response: ref("APIKey")},
		{method: http.MethodGet, path: "/api/keys", id: "listKeys", tag: "keys",
			summary: "List usable API keys", security: []string{securityBearer},
			status: 200, response: arrayOf("APIKey")},
		{method: http.MethodDelete, path: "/api/keys/{keyId}", id: "revokeKey", tag: "keys",
			summary: "Revoke an API key", security: []string{securityBearer},
			params: []string{"keyId"}, status: 204},

		{method: http.MethodPost, path: "/api/admin/keys", id: "createAdminKey", tag: "admin",
			summary: "Issue an admin API key", security: []string{securityBearer, securityAPIKey},
			body: "CreateKeyRequest", status: 201, response: ref("APIKey")},
		{method: http.MethodDelete, path: "/api/admin/users/{userId}", id: "deleteUser", tag: "admin",
			summary: "Delete any account (ADMIN role)", security: []string{securityBearer},
			params: []string{"userId"}, status: 204},

		{method: http.MethodGet, path: "/api/users/me", id: "getProfile", tag: "users",
			summary: "Current user", security: []string{securityBearer}, status: 200, response: ref("User")},
		{method: http.MethodPatch, path: "/api/users/me", id: "updateProfile", tag: "users",
			summary: "Change username or email", security: []string{securityBearer},
			body: "UpdateProfileRequest", status: 200, response: ref("User")},
		{method: http.MethodDelete, path: "/api/users/me", id: "deleteProfile", tag: "users",
			summary: "Delete the current account", security: []string{securityBearer}, status: 204},
		{method: http.MethodPut, path: "/api/users/me/password", id: "changePassword", tag: "users",
			summary: "Change password", security: []string{securityBearer},
			body: "ChangePasswordRequest", status: 204},

		{method: http.MethodPost, path: "/api/tools/codeshot", id: "codeshot", tag: "tools",
			summary: "Render code to an image", security: []string{securityAPIKey},
			body: "CodeshotRequest", status: 200, content: imageTypes},
	}
}

func addPaths(doc *openapi3.T) {
	for _, e := range endpoints() {
		item := doc.Paths.Value(e.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(e.path, item)
		}
		item.SetOperation(e.method, e.operation())
	}
}

func (e endpoint) operation() *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = e.id
	op.Summary = e.summary
	op.Tags = []string{e.tag}

	if len(e.security) > 0 {
		req := openapi3.NewSecurityRequirement()
		for _, name := range e.security {
			req.Authenticate(name)
		}
		op.Security = &openapi3.SecurityRequirements{req}
	}

	for _, p := range e.params {
		op.AddParameter(openapi3.NewPathParameter(p).WithSchema(openapi3.NewStringSchema()))
	}

	if e.body != "" {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(ref(e.body)),
		}
	}

	op.Responses = newResponses(e)
	return op
}

// newResponses builds the success response followed by the error responses
// every endpoint can produce.
func newResponses(e endpoint) *openapi3.Responses {
	responses := openapi3.NewResponses()
	// NewResponses seeds a "default" entry.
	responses.Delete("default")

	success := openapi3.NewResponse().WithDescription(http.StatusText(e.status))
	switch {
	case len(e.content) > 0:
		content := openapi3.Content{}
		binary := openapi3.NewStringSchema().WithFormat("binary")
		for _, ct := range e.content {
			content[ct] = openapi3.NewMediaType().WithSchema(binary)
		}
		success.Content = content
	case e.response != nil:
		success.Content = openapi3.NewContentWithJSONSchemaRef(e.response)
	}
	responses.Set(strconv.Itoa(e.status), &openapi3.ResponseRef{Value: success})

	errorRef := ref("ErrorResponse")
	codes := []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError}
	if len(e.security) > 0 {
		codes = append(codes, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound)
	}
	for _, code := range codes {
		responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(http.StatusText(code)).
				WithContent(openapi3.NewContentWithJSONSchemaRef(errorRef)),
		})
	}
	return responses
}

func arrayOf(name string) *openapi3.SchemaRef {
	s := openapi3.NewArraySchema()
	s.Items = ref(name)
	return s.NewRef()
}
