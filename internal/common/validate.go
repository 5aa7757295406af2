package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared payload validator. Field names in reported errors use the JSON tag.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// DecodeAndValidate reads a JSON body into dst and validates it. An empty body decodes as {}.
// The returned error is an *AppError ready for the error writer.
func DecodeAndValidate(r *http.Request, dst any) error {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			appErr := NewAppError("BAD_REQUEST", "invalid JSON payload", http.StatusBadRequest, err)
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				appErr.Details = map[string]any{"offset": syntaxErr.Offset}
			}
			return appErr
		}
	}
	if err := Validator().Struct(dst); err != nil {
		return NewAppError("VALIDATION_FAILED", "payload failed validation", http.StatusUnprocessableEntity, err).
			WithDetails(ValidationDetails(err))
	}
	return nil
}

// ValidationDetails flattens validator errors into field -> failed rule.
func ValidationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[fe.Field()] = rule
	}
	return out
}
