package router

import (
	"net/http"
	"strings"
)

// Middleware wraps a handler with cross-cutting behaviour.
type Middleware func(next http.Handler) http.Handler

// Router is a ServeMux with a middleware chain and prefix mounted sub routers.
// Middleware registered on a router applies to everything it serves, including
// its sub routers.
type Router struct {
	prefix     string
	mux        *http.ServeMux
	middleware []Middleware
}

func New() *Router {
	return &Router{
		prefix: "",
		mux:    http.NewServeMux(),
	}
}

func (rt *Router) Use(mw ...Middleware) {
	rt.middleware = append(rt.middleware, mw...)
}

// Handle registers handler for pattern. Patterns may carry a method, as in "POST /items".
func (rt *Router) Handle(pattern string, handler http.Handler) {
	rt.mux.Handle(normalize(pattern), handler)
}

func (rt *Router) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	rt.mux.HandleFunc(normalize(pattern), handler)
}

// SubRouter mounts a new router under prefix. The prefix is stripped before the
// sub router sees the request.
func (rt *Router) SubRouter(prefix string) *Router {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		panic("router: empty sub router prefix")
	}
	prefix = "/" + prefix

	s := &Router{
		prefix: rt.prefix + prefix,
		mux:    http.NewServeMux(),
	}

	rt.mux.Handle(prefix+"/", http.StripPrefix(prefix, s))
	return s
}

// Prefix returns the absolute mount point of the router.
func (rt *Router) Prefix() string {
	return rt.prefix
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var h http.Handler = rt.mux
	for i := len(rt.middleware) - 1; i >= 0; i-- {
		h = rt.middleware[i](h)
	}

	h.ServeHTTP(w, r)
}

func normalize(pattern string) string {
	method, path, found := strings.Cut(pattern, " ")
	if !found {
		path, method = method, ""
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if method == "" {
		return path
	}
	return method + " " + path
}
