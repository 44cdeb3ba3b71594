package tool

// ParameterSpec is one request parameter in an HTTP invocation template.
type ParameterSpec struct {
	Name     string `json:"name"`
	In       string `json:"in"` // path, query, header
	Required bool   `json:"required,omitempty"`
}

// InvocationTemplate is the provider payload for HTTP-described tools: the
// request shape extracted from one OpenAPI operation. The HTTP provider
// builds a concrete request from it plus the call's arguments.
type InvocationTemplate struct {
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Parameters   []ParameterSpec `json:"parameters,omitempty"`
	ContentTypes []string        `json:"content_types,omitempty"`
}

// Parameter locations.
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
)
