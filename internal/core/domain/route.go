package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// RouteName identifies a screen in the navigation graph.
type RouteName string

const (
	RouteLogin        RouteName = "login"
	RouteSignup       RouteName = "signup"
	RouteHome         RouteName = "home"
	RouteSubjectHome  RouteName = "subject_home"
	RouteMaterialList RouteName = "material_list"
)

const (
	ParamSubjectID    = "subjectId"
	ParamSubjectName  = "subjectName"
	ParamSubjectCode  = "subjectCode"
	ParamMaterialType = "materialType"

	QueryDarkMode = "isDarkMode"
)

// QueryKind is the value type of a query parameter.
type QueryKind int

const (
	QueryString QueryKind = iota
	QueryBool
)

// QueryParam declares an optional, named route parameter.
type QueryParam struct {
	Name    string
	Kind    QueryKind
	Default string
}

// RouteSpec declares a route's required path parameters, in positional order,
// and its optional query parameters.
type RouteSpec struct {
	Name  RouteName
	Path  []string
	Query []QueryParam
}

// Pattern renders the spec in the `name/{param}?query={query}` form.
func (s RouteSpec) Pattern() string {
	var b strings.Builder
	b.WriteString(string(s.Name))
	for _, p := range s.Path {
		b.WriteString("/{")
		b.WriteString(p)
		b.WriteString("}")
	}
	for i, q := range s.Query {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s={%s}", q.Name, q.Name)
	}
	return b.String()
}

func (s RouteSpec) hasPath(name string) bool {
	for _, p := range s.Path {
		if p == name {
			return true
		}
	}
	return false
}

func (s RouteSpec) query(name string) (QueryParam, bool) {
	for _, q := range s.Query {
		if q.Name == name {
			return q, true
		}
	}
	return QueryParam{}, false
}

var darkModeQuery = QueryParam{Name: QueryDarkMode, Kind: QueryBool, Default: "false"}

var routeTable = map[RouteName]RouteSpec{
	RouteLogin:  {Name: RouteLogin},
	RouteSignup: {Name: RouteSignup},
	RouteHome:   {Name: RouteHome},
	RouteSubjectHome: {
		Name:  RouteSubjectHome,
		Path:  []string{ParamSubjectID, ParamSubjectName, ParamSubjectCode},
		Query: []QueryParam{darkModeQuery},
	},
	RouteMaterialList: {
		Name:  RouteMaterialList,
		Path:  []string{ParamSubjectID, ParamSubjectName, ParamMaterialType},
		Query: []QueryParam{darkModeQuery},
	},
}

// LookupRoute returns the declaration of a recognized route.
func LookupRoute(name RouteName) (RouteSpec, bool) {
	spec, ok := routeTable[name]
	return spec, ok
}

// RouteSpecs lists every recognized route in a stable order.
func RouteSpecs() []RouteSpec {
	return []RouteSpec{
		routeTable[RouteLogin],
		routeTable[RouteSignup],
		routeTable[RouteHome],
		routeTable[RouteSubjectHome],
		routeTable[RouteMaterialList],
	}
}

// IsAuthScreen reports whether the route is one of the sign-in/sign-up screens.
func (n RouteName) IsAuthScreen() bool {
	return n == RouteLogin || n == RouteSignup
}

// Param is a single name/value pair of a route.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Route is a back-stack entry: a route name with all required path parameters
// in declaration order and every declared query parameter resolved.
type Route struct {
	Name  RouteName `json:"name"`
	Path  []Param   `json:"path,omitempty"`
	Query []Param   `json:"query,omitempty"`
}

// NewRoute builds a route descriptor. Every required path parameter must be
// present and non-empty; absent query parameters resolve to their defaults.
func NewRoute(name RouteName, params, query map[string]string) (Route, error) {
	spec, ok := LookupRoute(name)
	if !ok {
		return Route{}, &ValidationError{Route: name, Reason: "unknown route"}
	}

	for key := range params {
		if !spec.hasPath(key) {
			return Route{}, &ValidationError{Route: name, Param: key, Reason: "unexpected path parameter"}
		}
	}
	for key := range query {
		if _, ok := spec.query(key); !ok {
			return Route{}, &ValidationError{Route: name, Param: key, Reason: "unexpected query parameter"}
		}
	}

	route := Route{Name: name}
	if len(spec.Path) > 0 {
		route.Path = make([]Param, 0, len(spec.Path))
	}
	for _, p := range spec.Path {
		value := params[p]
		if value == "" {
			return Route{}, &ValidationError{Route: name, Param: p, Reason: "missing required value"}
		}
		if p == ParamMaterialType {
			if _, ok := ParseMaterialType(value); !ok {
				return Route{}, &ValidationError{Route: name, Param: p, Reason: fmt.Sprintf("unknown material type %q", value)}
			}
		}
		route.Path = append(route.Path, Param{Name: p, Value: value})
	}

	if len(spec.Query) > 0 {
		route.Query = make([]Param, 0, len(spec.Query))
	}
	for _, q := range spec.Query {
		value, ok := query[q.Name]
		if !ok || value == "" {
			value = q.Default
		}
		if q.Kind == QueryBool {
			if value != "true" && value != "false" {
				return Route{}, &ValidationError{Route: name, Param: q.Name, Reason: fmt.Sprintf("expected true or false, got %q", value)}
			}
		}
		route.Query = append(route.Query, Param{Name: q.Name, Value: value})
	}

	return route, nil
}

// MustRoute is NewRoute for statically known routes; it panics on a validation error.
func MustRoute(name RouteName, params, query map[string]string) Route {
	route, err := NewRoute(name, params, query)
	if err != nil {
		panic(err)
	}
	return route
}

// ParseRoute resolves the string form `name/param1/param2?query=value`.
func ParseRoute(raw string) (Route, error) {
	pathPart, rawQuery, _ := strings.Cut(raw, "?")
	segments := strings.Split(pathPart, "/")
	name := RouteName(segments[0])

	spec, ok := LookupRoute(name)
	if !ok {
		return Route{}, &ValidationError{Route: name, Reason: "unknown route"}
	}

	values := segments[1:]
	if len(values) > len(spec.Path) {
		return Route{}, &ValidationError{Route: name, Reason: fmt.Sprintf("expected %d path segments, got %d", len(spec.Path), len(values))}
	}

	params := make(map[string]string, len(spec.Path))
	for i, p := range spec.Path {
		if i >= len(values) {
			return Route{}, &ValidationError{Route: name, Param: p, Reason: "missing required value"}
		}
		value, err := url.PathUnescape(values[i])
		if err != nil {
			return Route{}, &ValidationError{Route: name, Param: p, Reason: "malformed escape sequence"}
		}
		params[p] = value
	}

	var query map[string]string
	if rawQuery != "" {
		parsed, err := url.ParseQuery(rawQuery)
		if err != nil {
			return Route{}, &ValidationError{Route: name, Reason: "malformed query string"}
		}
		query = make(map[string]string, len(parsed))
		for key, vals := range parsed {
			if len(vals) > 0 {
				query[key] = vals[len(vals)-1]
			}
		}
	}

	return NewRoute(name, params, query)
}

// Param returns the value of a path parameter, or "" when the route does not declare it.
func (r Route) Param(name string) string {
	for _, p := range r.Path {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// QueryValue returns the resolved value of a query parameter.
func (r Route) QueryValue(name string) string {
	for _, q := range r.Query {
		if q.Name == name {
			return q.Value
		}
	}
	return ""
}

// Bool returns a boolean query parameter; undeclared parameters read as false.
func (r Route) Bool(name string) bool {
	return r.QueryValue(name) == "true"
}

// String encodes the route. Path values are path-escaped so they round-trip through ParseRoute.
func (r Route) String() string {
	var b strings.Builder
	b.WriteString(string(r.Name))
	for _, p := range r.Path {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p.Value))
	}
	for i, q := range r.Query {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(q.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.Value))
	}
	return b.String()
}

// Equal compares name and every resolved parameter.
func (r Route) Equal(other Route) bool {
	if r.Name != other.Name || len(r.Path) != len(other.Path) || len(r.Query) != len(other.Query) {
		return false
	}
	for i := range r.Path {
		if r.Path[i] != other.Path[i] {
			return false
		}
	}
	for i := range r.Query {
		if r.Query[i] != other.Query[i] {
			return false
		}
	}
	return true
}
