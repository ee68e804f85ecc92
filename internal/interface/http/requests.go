package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// Shape checks happen here; domain rules stay in the command handlers.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitApplicationRequest is the body of POST /api/v1/applications.
type SubmitApplicationRequest struct {
	ProgramID  string `json:"program_id" validate:"required,max=64"`
	Message    string `json:"message" validate:"required,max=5000"`
	Motivation string `json:"motivation" validate:"max=5000"`
	CVURL      string `json:"cv_url" validate:"omitempty,url,max=2048"`
}

// DecisionRequest is the body of POST /api/v1/applications/{id}/decision.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT approve reject"`
}

// ReportRequest is the body of report create and update.
type ReportRequest struct {
	WeekNumber int    `json:"week_number" validate:"required,min=1"`
	ReportText string `json:"report_text" validate:"required,max=20000"`
	ImageURL   string `json:"image_url" validate:"required,url,max=2048"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Decoding
// ─────────────────────────────────────────────────────────────────────────────

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestError is a malformed or invalid body.
type requestError struct {
	message string
	fields  map[string]string
}

func (e *requestError) Error() string {
	return e.message
}

// decodeBody reads exactly one JSON object into dst and validates it.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &requestError{message: "request body is empty"}
		case errors.As(err, &maxErr):
			return &requestError{message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}
		default:
			return &requestError{message: "malformed JSON: " + err.Error()}
		}
	}
	if dec.More() {
		return &requestError{message: "request body must contain a single JSON object"}
	}

	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &requestError{message: "invalid request"}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeTag(fe)
	}
	return &requestError{message: "request validation failed", fields: fields}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be an absolute URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
