package api

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ValidationError marks client errors answered with 400.
type ValidationError struct {
	Err error
}

func (e ValidationError) Error() string { return e.Err.Error() }

func (e ValidationError) Unwrap() error { return e.Err }

func IsValidationError(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

var (
	errRequestBodyRequired = ValidationError{Err: errors.New("request body required")}
	errRequestBodyInvalid  = ValidationError{Err: errors.New("request body contains malformed JSON")}
	errRequestBodyTooLarge = ValidationError{Err: errors.New("request body too large")}
)

type Errors struct {
	Errors []string `json:"errors"`
}

func DecodeError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		err = errRequestBodyRequired
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = errRequestBodyInvalid
	case errors.As(err, &maxBytes):
		err = errRequestBodyTooLarge
	}
	Error(w, ValidationError{Err: err})
}

func Error(w http.ResponseWriter, err error) {
	ErrorCode(w, err, -1)
}

// ErrorCode replies to the request with the error message as JSON-encoded
// body. If code is less than 0, it is deduced from the error. Internal errors
// are answered without a body.
func ErrorCode(w http.ResponseWriter, err error, code int) {
	switch {
	case err == nil:
		return
	case code > 0:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
	case IsValidationError(err):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(Errors{Errors: []string{err.Error()}})
}

func MustJSON(w http.ResponseWriter, v interface{}) {
	resp, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}
