package reminder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatePercent(t *testing.T) {
	cases := []struct {
		part, whole int
		want        string
	}{
		{0, 0, "0.00"},
		{3, 0, "0.00"},
		{0, 10, "0.00"},
		{1, 10, "10.00"},
		{2, 10, "20.00"},
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{1, 32, "3.13"}, // 3.125 rounds half up
		{1, 8, "12.50"},
		{1, 200, "0.50"},
		{1, 400, "0.25"},
		{1, 1600, "0.06"}, // 0.0625
		{10, 10, "100.00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RatePercent(tc.part, tc.whole).String(), "%d/%d", tc.part, tc.whole)
	}
}

func TestPercentComparesAgainstThreshold(t *testing.T) {
	threshold, err := ParsePercent("10")
	require.NoError(t, err)

	assert.True(t, RatePercent(1, 10) >= threshold)
	assert.False(t, RatePercent(1, 11) >= threshold)
}

func TestParsePercent(t *testing.T) {
	p, err := ParsePercent("12.3")
	require.NoError(t, err)
	assert.Equal(t, Percent(1230), p)

	p, err = ParsePercent(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, Percent(700), p)

	_, err = ParsePercent("1.234")
	assert.Error(t, err)
	_, err = ParsePercent("abc")
	assert.Error(t, err)
}

func TestPercentScan(t *testing.T) {
	var p Percent
	require.NoError(t, p.Scan([]byte("33.33")))
	assert.Equal(t, Percent(3333), p)

	require.NoError(t, p.Scan(nil))
	assert.Equal(t, Percent(0), p)

	require.NoError(t, p.Scan(12.5))
	assert.Equal(t, Percent(1250), p)

	assert.Error(t, p.Scan(true))

	v, err := Percent(6667).Value()
	require.NoError(t, err)
	assert.Equal(t, "66.67", v)
}

func TestPercentJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Rate Percent `json:"rate"`
	}{Rate: RatePercent(1, 3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate": 33.33}`, string(b))

	var back struct {
		Rate Percent `json:"rate"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Percent(3333), back.Rate)
}
