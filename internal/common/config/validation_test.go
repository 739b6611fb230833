package config

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

type inner struct {
	Level string `validate:"oneof=ONE QUORUM ALL"`
}

type validatedConfig struct {
	Size  float64 `validate:"gt=0"`
	Name  string  `validate:"required"`
	Inner inner
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(validatedConfig{Size: 1, Name: "a", Inner: inner{Level: "ONE"}}))

	tests := map[string]struct {
		config validatedConfig
		field  string
	}{
		"zero size":     {config: validatedConfig{Name: "a", Inner: inner{Level: "ONE"}}, field: "Size"},
		"missing name":  {config: validatedConfig{Size: 1, Inner: inner{Level: "ONE"}}, field: "Name"},
		"unknown level": {config: validatedConfig{Size: 1, Name: "a", Inner: inner{Level: "TWO"}}, field: "Inner.Level"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var invalid *bencherrors.ErrInvalidArgument
			require.True(t, errors.As(Validate(tc.config), &invalid))
			assert.Equal(t, tc.field, invalid.Name)
		})
	}
}
