// Package validation checks request bodies against their validate tags and
// reports failures per field, keyed by the JSON field name.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/docket/pkg/httputil"
)

var departmentCode = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{0,31}$`)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterValidation("deptcode", func(fl validator.FieldLevel) bool {
		return departmentCode.MatchString(fl.Field().String())
	})
	return v
}

// Errors maps a field path to a readable failure
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+" "+e[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Struct validates v. It returns Errors when a tag fails.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}
	out := make(Errors, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fieldPath(fe)] = message(fe)
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a UUID"
	case "deptcode":
		return "must be 1 to 32 upper-case letters, digits or dashes"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// IsValidationError reports whether err came from Struct
func IsValidationError(err error) bool {
	var ve Errors
	return errors.As(err, &ve)
}

// DecodeOrError parses the JSON body into dest and validates it. On failure
// it writes a 400 and returns false.
func DecodeOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := httputil.ParseJSON(r, dest); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return false
	}
	return CheckOrError(w, dest)
}

// CheckOrError validates v and writes a 400 with field details on failure
func CheckOrError(w http.ResponseWriter, v interface{}) bool {
	err := Struct(v)
	if err == nil {
		return true
	}
	var ve Errors
	if errors.As(err, &ve) {
		httputil.WriteValidationErrors(w, ve)
		return false
	}
	httputil.WriteBadRequest(w, err.Error())
	return false
}
