package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator and
// makes validation errors report wire names instead of Go field names.
// Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(wireName)
		_ = v.RegisterValidation("password", validatePassword)
	})
}

// wireName prefers the json tag, then the form tag.
func wireName(sf reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(sf.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return sf.Name
}

// password: at least 8 characters with one letter and one number.
func validatePassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 8 {
		return false
	}

	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

func BindJSON(ctx *gin.Context, out interface{}) bool {
	RegisterValidators()

	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err))
		return false
	}

	return true
}

// BindQuery is BindJSON for query strings.
func BindQuery(ctx *gin.Context, out interface{}) bool {
	RegisterValidators()

	if err := ctx.ShouldBindQuery(out); err != nil {
		RespondBadRequest(ctx, "Invalid query parameters", bindErrorDetails(err))
		return false
	}

	return true
}

func bindErrorDetails(err error) gin.H {
	var (
		invalid validator.ValidationErrors
		syntax  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &invalid):
		fields := make([]FieldError, 0, len(invalid))
		for _, fe := range invalid {
			fields = append(fields, FieldError{
				Field:   fieldPath(fe),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}

	case errors.As(err, &syntax):
		return gin.H{"json": "invalid_json_syntax"}

	case errors.As(err, &typeErr):
		// Field is already the dotted path of json names.
		field := strings.TrimSpace(typeErr.Field)
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be of type " + typeErr.Type.String(),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

// fieldPath drops the root struct from the namespace: "RegisterRequest.items[0].sku" -> "items[0].sku".
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok && rest != "" {
		return rest
	}
	return fe.Field()
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "password":
		return "must be at least 8 characters and contain at least one letter and one number"
	case "uuid":
		return "must be a valid id"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}

func respondMissing(ctx *gin.Context, message, field string) {
	RespondBadRequest(ctx, message, gin.H{
		"fields": []FieldError{{Field: field, Rule: "required", Message: validationMessage("required", "")}},
	})
}
