// Package guard composes request admission checks into an explicit, ordered
// pipeline. Each guard either admits the request (optionally replacing it with
// an enriched copy) or returns an error that ends the pipeline.
package guard

import (
	"mime"
	"net/http"

	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/httputil"
)

// Guard inspects a request before the handler runs. Guards may set response
// headers on w but must not write a body.
type Guard interface {
	Check(w http.ResponseWriter, r *http.Request) (*http.Request, error)
}

// Func adapts an ordinary function to Guard.
type Func func(w http.ResponseWriter, r *http.Request) (*http.Request, error)

func (f Func) Check(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	return f(w, r)
}

// Pipeline runs guards in order and writes the first denial through
// httputil.WriteError.
type Pipeline struct {
	guards []Guard
}

// New builds a pipeline; nil guards are skipped.
func New(guards ...Guard) *Pipeline {
	p := &Pipeline{}
	for _, g := range guards {
		if g != nil {
			p.guards = append(p.guards, g)
		}
	}
	return p
}

// Then returns a pipeline that runs p's guards followed by more.
func (p *Pipeline) Then(more ...Guard) *Pipeline {
	return New(append(append([]Guard{}, p.guards...), more...)...)
}

// Wrap returns a handler that admits requests through the pipeline.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, g := range p.guards {
			updated, err := g.Check(w, r)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if updated != nil {
				r = updated
			}
		}
		next.ServeHTTP(w, r)
	})
}

// WrapFunc is Wrap for handler functions.
func (p *Pipeline) WrapFunc(next http.HandlerFunc) http.Handler {
	return p.Wrap(next)
}

// RequireJSON rejects bodies that are not declared as JSON or exceed maxBytes.
// GET and HEAD requests pass untouched.
func RequireJSON(maxBytes int64) Guard {
	return Func(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			return r, nil
		}
		if r.ContentLength > maxBytes {
			return nil, dErrors.New(dErrors.CodeBadRequest, "request body too large")
		}
		if r.ContentLength != 0 {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				return nil, dErrors.New(dErrors.CodeBadRequest, "content type must be application/json")
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		return r, nil
	})
}
