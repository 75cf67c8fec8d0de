package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Due  Date  `json:"due"`
		Paid *Date `json:"paid"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2025-03-31","paid":null}`), &payload))
	assert.Equal(t, NewDate(2025, time.March, 31), payload.Due)
	assert.Nil(t, payload.Paid)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2025-03-31","paid":null}`, string(out))
}

func TestDate_AcceptsTimestamps(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2025-01-15T13:45:00Z"`), &d))
	assert.Equal(t, "2025-01-15", d.String())
}

func TestDate_RejectsGarbage(t *testing.T) {
	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"31/03/2025"`), &d))
}

func TestDate_ScanAndValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-12-01"))
	assert.Equal(t, NewDate(2024, time.December, 1), d)

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-12-01", v)

	var zero Date
	require.NoError(t, zero.Scan(nil))
	v, err = zero.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
