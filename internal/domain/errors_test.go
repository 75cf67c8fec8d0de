package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("amount", "too small")
	v.Add("amount", "too precise")
	v.Add("name", "required")

	err := fmt.Errorf("create budget: %w", v.OrNil())
	got, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"too small", "too precise"}, got.Fields["amount"])
	assert.Equal(t, "validation failed: amount: too small; too precise, name: required", got.Error())
}

func TestSentinelHelpers(t *testing.T) {
	assert.True(t, errors.Is(NotFoundf("budget %d", 3), ErrNotFound))
	assert.True(t, errors.Is(Conflictf("budget %d has lines", 3), ErrConflict))
}

func TestValidateAmount(t *testing.T) {
	cases := map[string]bool{
		"0.01":        true,
		"0":           false,
		"-5":          false,
		"1000.50":     true,
		"1000.505":    false,
		"99999999.99": true,
		"100000000":   false,
	}
	for raw, valid := range cases {
		v := &ValidationError{}
		ValidateAmount(v, "amount", decimal.RequireFromString(raw))
		assert.Equal(t, !valid, v.HasErrors(), raw)
	}
}

func TestValidateChoice(t *testing.T) {
	v := &ValidationError{}
	ValidateChoice(v, "category", "CAPEX", Categories)
	ValidateChoice(v, "category", "", Categories)
	assert.False(t, v.HasErrors())

	ValidateChoice(v, "category", "OTHER", Categories)
	assert.True(t, v.HasErrors())
}
