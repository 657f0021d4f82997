// Package openapi builds an OpenAPI 3 document from the routes registered
// on an echo instance, with schemas reflected from the JSON models.
package openapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Operation documents one route. Zero fields fall back to values derived
// from the method and path.
type Operation struct {
	Summary string
	// Request and Response name component schemas.
	Request  string
	Response string
	// ResponseArray marks a response that is a JSON array of Response.
	ResponseArray bool
	Status        int
	Query         []string
}

type Generator struct {
	title   string
	version string
	baseURL string
	routes  func() []*echo.Route

	mu      sync.RWMutex
	ops     map[string]Operation
	schemas map[string]map[string]interface{}
}

// NewGenerator documents the routes returned by routes, normally e.Routes.
func NewGenerator(title, version, baseURL string, routes func() []*echo.Route) *Generator {
	return &Generator{
		title:   title,
		version: version,
		baseURL: baseURL,
		routes:  routes,
		ops:     make(map[string]Operation),
		schemas: map[string]map[string]interface{}{"Error": errorSchema()},
	}
}

// Describe attaches documentation to the route method+path, using echo's
// ":param" path syntax.
func (g *Generator) Describe(method, path string, op Operation) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops[method+" "+path] = op
	return g
}

// Model registers a component schema reflected from model.
func (g *Generator) Model(name string, model interface{}) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.schemas[name] = SchemaOf(model)
	return g
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"error", "message"},
		"properties": map[string]interface{}{
			"error":   map[string]interface{}{"type": "string", "example": "conflict"},
			"message": map[string]interface{}{"type": "string"},
		},
	}
}

// GenerateSpec produces the document as a JSON-ready map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	routes := g.routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	paths := make(map[string]map[string]interface{})
	for _, r := range routes {
		if !documented(r) {
			continue
		}
		path, params := convertPath(r.Path)
		item, ok := paths[path]
		if !ok {
			item = make(map[string]interface{})
			paths[path] = item
		}
		item[strings.ToLower(r.Method)] = g.operation(r, params)
	}

	schemas := make(map[string]interface{}, len(g.schemas))
	for k, v := range g.schemas {
		schemas[k] = v
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers":    []map[string]string{{"url": g.baseURL}},
		"paths":      paths,
		"components": map[string]interface{}{"schemas": schemas},
	}
}

func documented(r *echo.Route) bool {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	return !strings.HasSuffix(r.Path, "/*") && r.Path != "/api/openapi.json"
}

func (g *Generator) operation(r *echo.Route, params []string) map[string]interface{} {
	op := g.ops[r.Method+" "+r.Path]
	if op.Summary == "" {
		op.Summary = r.Method + " " + r.Path
	}
	if op.Status == 0 {
		op.Status = defaultStatus(r.Method)
	}

	parameters := make([]map[string]interface{}, 0, len(params)+len(op.Query))
	for _, p := range params {
		parameters = append(parameters, map[string]interface{}{
			"name": p, "in": "path", "required": true, "schema": paramSchema(p),
		})
	}
	for _, q := range op.Query {
		parameters = append(parameters, map[string]interface{}{
			"name": q, "in": "query", "schema": map[string]interface{}{"type": "string"},
		})
	}

	responses := map[string]interface{}{
		strconv.Itoa(op.Status): g.response(op),
		"default":               jsonResponse("Error", ref("Error")),
	}

	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": operationID(r.Method, r.Path),
		"tags":        []string{tagOf(r.Path)},
		"responses":   responses,
	}
	if len(parameters) > 0 {
		out["parameters"] = parameters
	}
	if op.Request != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": ref(op.Request)},
			},
		}
	}
	return out
}

func (g *Generator) response(op Operation) map[string]interface{} {
	desc := http.StatusText(op.Status)
	if op.Response == "" || op.Status == http.StatusNoContent {
		return map[string]interface{}{"description": desc}
	}
	schema := ref(op.Response)
	if op.ResponseArray {
		schema = map[string]interface{}{"type": "array", "items": schema}
	}
	return jsonResponse(desc, schema)
}

func jsonResponse(desc string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": desc,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func defaultStatus(method string) int {
	switch method {
	case http.MethodPost:
		return http.StatusCreated
	case http.MethodDelete:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}

// convertPath turns "/a/:id" into "/a/{id}" and returns the param names.
func convertPath(path string) (string, []string) {
	segs := strings.Split(path, "/")
	var params []string
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			name := s[1:]
			params = append(params, name)
			segs[i] = "{" + name + "}"
		}
	}
	return strings.Join(segs, "/"), params
}

func paramSchema(name string) map[string]interface{} {
	switch {
	case name == "id" || strings.HasSuffix(name, "Id"):
		return map[string]interface{}{"type": "string", "format": "uuid"}
	case name == "date":
		return map[string]interface{}{"type": "string", "format": "date"}
	default:
		return map[string]interface{}{"type": "string"}
	}
}

// tagOf groups routes by the first segment after the version prefix.
func tagOf(path string) string {
	p := strings.TrimPrefix(path, "/api/v1")
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "system"
	}
	return p
}

func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, s := range strings.Split(strings.TrimPrefix(path, "/api/v1"), "/") {
		s = strings.TrimPrefix(s, ":")
		s = strings.ReplaceAll(s, "-", "")
		if s == "" {
			continue
		}
		b.WriteString(strings.ToUpper(s[:1]) + s[1:])
	}
	return b.String()
}

// RegisterRoutes serves the document at GET /openapi.json under g's group.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}
