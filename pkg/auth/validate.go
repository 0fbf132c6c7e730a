package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared struct validator. Field names in errors use json tags.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks that the context is well formed and carries the ids its role needs
func (c Context) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidContext, describe(err))
	}

	switch {
	case c.Role.IsCountyLevel() && c.TenantID == nil:
		return fmt.Errorf("%w: role %s requires tenant_id", ErrInvalidContext, c.Role)
	case c.Role == RoleCooperativeAdmin && c.UserID == nil:
		return fmt.Errorf("%w: role %s requires user_id", ErrInvalidContext, c.Role)
	case c.Role == RoleCitizen && c.UserID == nil:
		return fmt.Errorf("%w: role %s requires user_id", ErrInvalidContext, c.Role)
	}

	return nil
}

// describe flattens validator errors into one message
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s %q is not one of [%s]", e.Field(), e.Value(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", e.Field(), e.Tag(), e.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}
