package trip

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/AyushMusale/TripSense/internal/shared/travel"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("travel_mode", func(fl validator.FieldLevel) bool {
		return travel.Mode(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("trip_purpose", func(fl validator.FieldLevel) bool {
		return travel.Purpose(fl.Field().String()).Valid()
	})
	return v
}

// ValidationError lists the offending fields of a request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, ", ")
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fmt.Sprintf("%s (%s)", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func (r CreateRequest) validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if (r.EndLocation == nil) != (r.EndTime == nil) {
		return &ValidationError{Fields: []string{"end_location and end_time must be supplied together"}}
	}
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		return &ValidationError{Fields: []string{"end_time (before start_time)"}}
	}
	return nil
}
