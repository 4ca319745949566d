package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"hseptw.io/ptw/internal/domain"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
)

// bindError turns a binding failure into a VALIDATION_ERROR with field details.
func bindError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperrors.FieldError{
				Field:   jsonFieldName(fe),
				Code:    fe.Tag(),
				Message: fmt.Sprintf("failed on %q", fe.Tag()),
			})
		}
		return apperrors.Validation("request validation failed", fields...)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperrors.Validation("request body has a wrong type",
			apperrors.FieldError{Field: typeErr.Field, Code: "type"})
	}
	return apperrors.Validation("malformed request body: " + err.Error())
}

var fieldNamesOnce sync.Once

// useWireFieldNames makes validator report fields by their json (or form)
// tag, so field errors name what the client sent.
func useWireFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	})
}

// jsonFieldName drops the root struct from the namespace.
func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// recordKind is the discriminator of a create request.
type recordKind struct {
	Kind domain.Kind `json:"kind" binding:"required"`
}

// decodeRecord binds the kind and decodes the whole body into that variant.
func decodeRecord(body []byte) (domain.Record, error) {
	var k recordKind
	if err := binding.JSON.BindBody(body, &k); err != nil {
		return nil, bindError(err)
	}
	if !k.Kind.Valid() {
		return nil, apperrors.Validation("unknown record kind",
			apperrors.FieldError{Field: "kind", Code: "oneof"})
	}
	rec, err := domain.Decode(k.Kind, body)
	if err != nil {
		return nil, bindError(err)
	}
	return rec, nil
}

// RecordListResponse is one page of records.
type RecordListResponse struct {
	Items  []domain.Record `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
