package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vultisig/vultiwallet/internal/types"
)

var Validate *validator.Validate

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("hexadecimal", func(fl validator.FieldLevel) bool {
		return hexPattern.MatchString(fl.Field().String())
	})

	_ = Validate.RegisterValidation("network", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", types.NetworkLivenet, types.NetworkTestnet:
			return true
		}
		return false
	})
}

// Struct validates v and reports the first failing fields as a client
// error.
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("fail to validate request: %w", err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field()+": "+fe.Tag())
	}
	return types.NewClientError("Invalid request: %s", strings.Join(fields, ", "))
}

// EchoValidator plugs Struct into echo's Context.Validate.
type EchoValidator struct{}

func (EchoValidator) Validate(i any) error {
	return Struct(i)
}
