// Package validate checks request payloads with go-playground/validator and
// reports failures as ValidationError values. Field paths use JSON names.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/sofragment/fragment/internal/apperr"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Messages maps a JSON field path ("output.width", "highlight") to the
// message reported when any rule on that field fails. A "path:tag" key
// ("username:username") overrides it for a single rule.
type Messages map[string]string

var (
	once     sync.Once
	instance *validator.Validate

	colorRe    = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	letterRe   = regexp.MustCompile(`[A-Za-z]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
	indexRe    = regexp.MustCompile(`\[\d+\]`)
)

// Validator returns the shared validator with the custom rules registered:
//
//	color     #rgb or #rrggbb
//	username  letters, digits, underscore and hyphen
//	password  at least one letter and one digit
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		must(v.RegisterValidation("color", func(fl validator.FieldLevel) bool {
			return colorRe.MatchString(fl.Field().String())
		}))
		must(v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernameRe.MatchString(fl.Field().String())
		}))
		must(v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return letterRe.MatchString(s) && digitRe.MatchString(s)
		}))
		instance = v
	})
	return instance
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates s. On failure it returns a ValidationError whose message
// is the first field's message and whose details list every field.
func Struct(s interface{}, msgs Messages) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}

	fields := make([]FieldError, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		path := fieldPath(fe)
		if seen[path] {
			continue
		}
		seen[path] = true
		fields = append(fields, FieldError{Field: path, Message: message(path, fe, msgs)})
	}
	return apperr.Validation(fields[0].Message).WithDetails(fields)
}

// fieldPath strips the root struct name, embedded struct names (segments
// without a JSON name keep their capitalised Go name) and slice indexes
// from the namespace: "Request.Options.output.width" -> "output.width",
// "Request.Options.highlight[2]" -> "highlight".
func fieldPath(fe validator.FieldError) string {
	segs := strings.Split(indexRe.ReplaceAllString(fe.Namespace(), ""), ".")
	out := segs[:0]
	for i, seg := range segs {
		if i == 0 || seg == "" || unicode.IsUpper(rune(seg[0])) {
			continue
		}
		out = append(out, seg)
	}
	return strings.Join(out, ".")
}

func message(path string, fe validator.FieldError, msgs Messages) string {
	if m, ok := msgs[path+":"+fe.Tag()]; ok {
		return m
	}
	if m, ok := msgs[path]; ok {
		return m
	}
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "email":
		return "Must be a valid email address"
	case "oneof":
		return "Invalid " + path
	case "min", "max", "gte", "lte":
		return path + " is out of range"
	default:
		return "Invalid " + path
	}
}
