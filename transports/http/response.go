package http

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusCoder is implemented by errors that choose their HTTP status
type StatusCoder interface {
	StatusCode() int
}

// Error is an error carrying an HTTP status and a client-facing message
type Error struct {
	Status  int
	Message string
	Err     error
}

// NewError creates an Error
func NewError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode implements StatusCoder
func (e *Error) StatusCode() int {
	return e.Status
}

func messageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Response is a result written to the client as is
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) write(w http.ResponseWriter) {
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}
