package concept

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/campuscloset/internal/ir"
)

// paramsValidate checks decoded action params.
// Initialized in init() with custom validators.
var paramsValidate *validator.Validate

func init() {
	paramsValidate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name so messages match what callers sent.
	paramsValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = paramsValidate.RegisterValidation("maxwords", validateMaxWords)
}

// validateMaxWords enforces `maxwords=N` on string fields: at most N
// whitespace-separated words.
func validateMaxWords(fl validator.FieldLevel) bool {
	var limit int
	if _, err := fmt.Sscanf(fl.Param(), "%d", &limit); err != nil {
		return false
	}
	return len(strings.Fields(fl.Field().String())) <= limit
}

// Typed adapts a strongly typed action to a Handler.
//
// Params are decoded into P through their JSON tags, then checked against
// `validate:` tags. The result R is encoded back into an IR object, so R
// must marshal to a JSON object. Decode and validation failures are
// returned as KindInvalid errors.
func Typed[P any, R any](fn func(ctx context.Context, p P) (R, error)) Handler {
	return func(ctx context.Context, params ir.IRObject) (ir.IRObject, error) {
		var p P
		if err := Decode(params, &p); err != nil {
			return nil, err
		}
		r, err := fn(ctx, p)
		if err != nil {
			return nil, err
		}
		return Encode(r)
	}
}

// Decode converts params into dst (a pointer to a struct) and validates it.
func Decode(params ir.IRObject, dst any) error {
	if params == nil {
		params = ir.IRObject{}
	}
	raw, err := params.MarshalJSON()
	if err != nil {
		return Invalidf("invalid params: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return Invalidf("invalid params: %s", describeDecodeError(err))
	}

	if reflect.Indirect(reflect.ValueOf(dst)).Kind() != reflect.Struct {
		return nil
	}
	if err := paramsValidate.Struct(dst); err != nil {
		return &Error{Kind: KindInvalid, Message: describeValidationError(err), Err: err}
	}
	return nil
}

// Encode converts v into an IR object.
func Encode(v any) (ir.IRObject, error) {
	switch val := v.(type) {
	case ir.IRObject:
		return val, nil
	case nil:
		return ir.IRObject{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	obj, err := ir.ObjectFromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return obj, nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be %s", typeErr.Field, typeErr.Type)
	}
	return err.Error()
}

// describeValidationError turns validator output into one sentence.
func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return strings.Join(msgs, "; ")
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must have at least %s %s", field, fe.Param(), unit(fe.Kind()))
	case "max":
		return fmt.Sprintf("%s must have at most %s %s", field, fe.Param(), unit(fe.Kind()))
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "maxwords":
		return fmt.Sprintf("%s must be at most %s words", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func unit(k reflect.Kind) string {
	if k == reflect.String {
		return "characters"
	}
	return "items"
}
