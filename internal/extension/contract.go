package extension

import (
	"context"
	"net/http"
	"strconv"

	"github.com/specialistvlad/infernum/internal/container"
)

// Application is the application context handed to extensions: settings of
// the booted site, shared services and the last chance to touch a response.
type Application interface {
	// Setting returns the site (or system) setting stored under key, or def.
	Setting(key, def string) string
	// Services exposes the kernel's service container.
	Services() *container.Container
	// Finalize lets the application mutate a response right before it is sent.
	Finalize(resp *Response)
}

// Module serves the actions of one page type. A fresh instance is built for
// every dispatch.
type Module interface {
	Run(ctx context.Context, app Application, req *http.Request, action string, args []string) (*Response, error)
}

// Plugin runs on every dispatch of the sites that require it. Boot is called
// once per kernel, Run once per dispatch.
type Plugin interface {
	Boot(ctx context.Context) error
	Run(ctx context.Context, app Application) error
}

// Response is a fully buffered HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	prepared bool
	head     bool
}

// NewResponse creates a response; a zero status means 200.
func NewResponse(body []byte, status int) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// Prepare fixes the response up for req: default status and content type,
// Content-Length, and no body for HEAD requests.
func (r *Response) Prepare(req *http.Request) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	if r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "text/html; charset=utf-8")
	}
	r.Header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	r.head = req != nil && req.Method == http.MethodHead
	r.prepared = true
}

// Prepared reports whether Prepare ran.
func (r *Response) Prepared() bool { return r.prepared }

// Send writes the response to w.
func (r *Response) Send(w http.ResponseWriter) error {
	for k, values := range r.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.head {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
