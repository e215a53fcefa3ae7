// Package responsewriter records what a handler wrote so that logging,
// metrics and tracing middleware can report it after the fact.
package responsewriter

import "net/http"

// ResponseWriter captures the status code and body size of a response.
type ResponseWriter struct {
	http.ResponseWriter
	status  int
	written int
	started bool
}

// Wrap returns w as a *ResponseWriter. A w that already is one is returned
// unchanged so stacked middleware share the same counters.
func Wrap(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader forwards the first status code and ignores later ones.
func (w *ResponseWriter) WriteHeader(code int) {
	if w.started {
		return
	}
	w.status = code
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.started {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Flush sends buffered data if the underlying writer supports it.
func (w *ResponseWriter) Flush() {
	if !w.started {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// StatusCode is the status sent, 200 if the handler never set one.
func (w *ResponseWriter) StatusCode() int { return w.status }

// BytesWritten is the body size sent so far.
func (w *ResponseWriter) BytesWritten() int { return w.written }

// HeaderWritten reports whether the status line has gone out.
func (w *ResponseWriter) HeaderWritten() bool { return w.started }

// Unwrap supports http.ResponseController.
func (w *ResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
