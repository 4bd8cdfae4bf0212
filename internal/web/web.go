// Package web holds the JSON envelope every endpoint answers with and the
// request decoding shared by the handlers.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message,omitempty"`
	Data       interface{}  `json:"data,omitempty"`
	Count      *int         `json:"count,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	Errors     []FieldError `json:"errors,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes env with the given status.
func JSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, message string, data interface{}) {
	JSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// List writes a successful envelope carrying a count and optional page info.
func List(w http.ResponseWriter, message string, data interface{}, count int, page *Pagination) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data, Count: &count, Pagination: page})
}

// Fail maps err onto a status code and writes a failure envelope. Internal
// errors are logged and never shown to the client.
func Fail(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	env := Envelope{Success: false, Message: apperr.MessageOf(err)}

	var verr *ValidationError
	if errors.As(err, &verr) {
		env.Errors = verr.Fields
	}
	if kind == apperr.Internal {
		logger.Error("request failed", zap.Error(err))
	}
	JSON(w, kind.HTTPStatus(), env)
}

// ValidationError carries per-field failures of a request body.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
	return v
}

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.Invalid, err, "Invalid request body")
	}
	return Validate(dst)
}

// Validate checks dst's struct tags.
func Validate(dst interface{}) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.Invalid, err, "Validation failed")
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperr.Wrap(apperr.Invalid, &ValidationError{Fields: fields}, "Validation failed")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "date":
		return "must be a date (YYYY-MM-DD or RFC 3339)"
	default:
		return "is invalid"
	}
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp and returns it
// in UTC.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// OptionalDate parses s when non-empty.
func OptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, apperr.New(apperr.Invalid, "Invalid date %q", s)
	}
	return &t, nil
}

// Page reads page and limit query parameters, defaulting to 1 and 10.
func Page(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}

// NewPagination fills in the page count for total items.
func NewPagination(page, limit, total int) *Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}
