package bookingapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var ginOnce sync.Once

// configureGin switches gin to release mode and makes validator report
// json/form field names instead of Go struct field names.
func configureGin() {
	ginOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return field.Name
		})
	})
}

// bindingErrorMessage renders the first binding failure as "<message>: <field>".
func bindingErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		return fieldErrorMessage(validationErrs[0])
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("Expected %s, received %s: %s", expectedKind(typeErr.Type), typeErr.Value, typeErr.Field)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "Invalid JSON body"
	}
	return "Invalid request"
}

func fieldErrorMessage(fieldErr validator.FieldError) string {
	field := fieldErr.Field()
	switch fieldErr.Tag() {
	case "required":
		return "Required: " + field
	case "min":
		return fmt.Sprintf("String must contain at least %s character(s): %s", fieldErr.Param(), field)
	case "gt":
		return fmt.Sprintf("Number must be greater than %s: %s", fieldErr.Param(), field)
	case "gte":
		return fmt.Sprintf("Number must be greater than or equal to %s: %s", fieldErr.Param(), field)
	case "email":
		return "Invalid email: " + field
	default:
		return fmt.Sprintf("Invalid value: %s", field)
	}
}

func expectedKind(target reflect.Type) string {
	if target == nil {
		return "value"
	}
	for target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}
