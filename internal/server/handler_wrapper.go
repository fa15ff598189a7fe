package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/maruel/typeimage/internal/autobackup"
	"github.com/maruel/typeimage/internal/storage"
)

// ErrorCode identifies an API error kind.
type ErrorCode string

// Error codes.
const (
	ErrCodeInvalid     ErrorCode = "INVALID_REQUEST"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeForbidden   ErrorCode = "PERMISSION_DENIED"
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// errorStatus maps storage errors to an HTTP status.
func errorStatus(err error) (int, ErrorCode) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, storage.ErrInvalidIdentifier), errors.Is(err, storage.ErrInvalidBackup):
		return http.StatusBadRequest, ErrCodeInvalid
	case errors.Is(err, storage.ErrPermissionDenied):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, storage.ErrBackendUnavailable), errors.Is(err, autobackup.ErrUnsupported), errors.Is(err, autobackup.ErrDisabled):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// Wrap wraps a handler function to work as an http.Handler.
//
// In is decoded from the JSON body when present. Struct fields tagged
// `path:"name"` and `query:"name"` are populated from the request.
//
// Example:
//
//	type GetWordRequest struct {
//	    ID string `path:"id"`
//	}
//
//	func (s *Services) GetWord(ctx context.Context, req *GetWordRequest) (*meta.Word, error)
func Wrap[In any, Out any](fn func(context.Context, *In) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(r.Body)
		if err2 := r.Body.Close(); err == nil {
			err = err2
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read request body", "err", err)
			writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalid, "Failed to read request body")
			return
		}
		input := new(In)
		if len(body) > 0 {
			d := json.NewDecoder(bytes.NewReader(body))
			d.DisallowUnknownFields()
			if err := d.Decode(input); err != nil {
				slog.WarnContext(ctx, "Failed to decode request body", "err", err)
				writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalid, "Invalid request body")
				return
			}
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)

		output, err := fn(ctx, input)
		if err != nil {
			status, code := errorStatus(err)
			if status >= http.StatusInternalServerError {
				slog.ErrorContext(ctx, "Handler error", "err", err, "status", status)
			} else {
				slog.DebugContext(ctx, "Handler error", "err", err, "status", status)
			}
			writeErrorResponse(w, status, code, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(output); err != nil {
			slog.ErrorContext(ctx, "Failed to encode response", "err", err)
		}
	})
}

// populatePathParams fills string fields tagged `path:"name"`.
func populatePathParams(r *http.Request, input any) {
	elem := reflect.ValueOf(input).Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" || field.Type.Kind() != reflect.String {
			continue
		}
		if v := r.PathValue(tag); v != "" {
			elem.Field(i).SetString(v)
		}
	}
}

// populateQueryParams fills fields tagged `query:"name"`.
func populateQueryParams(r *http.Request, input any) {
	elem := reflect.ValueOf(input).Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		v := query.Get(tag)
		if v == "" {
			continue
		}
		//nolint:exhaustive // Only string, int and bool are supported.
		switch field.Type.Kind() {
		case reflect.String:
			elem.Field(i).SetString(v)
		case reflect.Int:
			if n, err := strconv.Atoi(v); err == nil {
				elem.Field(i).SetInt(int64(n))
			}
		case reflect.Bool:
			if b, err := strconv.ParseBool(v); err == nil {
				elem.Field(i).SetBool(b)
			}
		default:
		}
	}
}

// errorResponse is the JSON body of a failed request.
type errorResponse struct {
	Error errorDetails `json:"error"`
}

type errorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorDetails{Code: code, Message: message}}); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
