package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

var validate = validator.New()

// Validate checks the `validate` struct tags of config. Every violation is logged;
// the first one is returned as an ErrInvalidArgument.
func Validate(config interface{}) error {
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return errors.WithStack(err)
	}
	LogValidationErrors(validationErrors)
	first := validationErrors[0]
	return errors.WithStack(&bencherrors.ErrInvalidArgument{
		Name:    stripPrefix(first.Namespace()),
		Value:   first.Value(),
		Message: describe(first),
	})
}

func LogValidationErrors(err validator.ValidationErrors) {
	for _, err := range err {
		log.Errorf("ConfigError: field %s %s", stripPrefix(err.Namespace()), describe(err))
	}
}

func describe(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required but was not found"
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("must satisfy %s=%s", err.Tag(), err.Param())
	case "oneof":
		return "must be one of " + err.Param()
	}
	return "failed validation " + err.Tag()
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
