package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// decimal: any finite number strconv.ParseFloat accepts, e.g. ".5", "2.", "1e3"
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		f, err := strconv.ParseFloat(fl.Field().String(), 64)
		return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
	})
	// count: a non-negative integer that fits in int64
	_ = v.RegisterValidation("count", func(fl validator.FieldLevel) bool {
		n, err := strconv.ParseInt(fl.Field().String(), 10, 64)
		return err == nil && n >= 0
	})
	return v
}

// Validate checks a payload against its struct tags and reports
// failures as ErrInvalidInput.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithMessage(ErrInvalidInput, err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
	}
	return Invalid("invalid fields: %s", strings.Join(fields, ", "))
}
