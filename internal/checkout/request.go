package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/fjod/petmarket/internal/apperr"
	cartdomain "github.com/fjod/petmarket/internal/cart/domain"
	"github.com/fjod/petmarket/internal/orders/domain"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Owner           cartdomain.Owner       `json:"-" validate:"-"`
	ShippingAddress domain.ShippingAddress `json:"shippingInfo"`
	PaymentMethod   domain.PaymentMethod   `json:"paymentMethod" validate:"required,payment_method"`
	Notes           string                 `json:"notes,omitempty" validate:"max=1000"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return domain.PaymentMethod(fl.Field().String()).Valid()
	})
	return v
}

// validateRequest reports every offending field by its JSON name.
func (s *CheckoutService) validateRequest(req Request) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &apperr.ValidationError{Fields: fields}
}
