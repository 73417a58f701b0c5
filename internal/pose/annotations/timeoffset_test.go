package annotations

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.overlay/internal/pose"
)

func TestParseDecimalSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want pose.TimeOffset
	}{
		{"0s", 0},
		{"1.5s", 1_500_000_000},
		{"12s", 12_000_000_000},
		{"0.033333s", 33_333_000},
		{"0.1", 100_000_000},
		{".25s", 250_000_000},
		{"3.", 3_000_000_000},
		{"-0.25s", -250_000_000},
		{"+2s", 2_000_000_000},
		{"1.0000000019s", 1_000_000_001},
		{" 4.2s ", 4_200_000_000},
		{"9223372036.854775807s", pose.MaxTimeOffset},
		{"-9223372036.854775807s", -pose.MaxTimeOffset},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDecimalSeconds(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDecimalSecondsInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "s", ".", "-", "1.2.3s", "abc", "1e3s", "1,5s", "--1s"} {
		_, err := ParseDecimalSeconds(in)
		assert.Error(t, err, "input %q", in)
	}

	for _, in := range []string{"10000000000.5s", "9223372036.854775808s", "-9223372037s", "99999999999999999999s"} {
		_, err := ParseDecimalSeconds(in)
		assert.Error(t, err, "input %q", in)
	}
	_, err := ParseDecimalSeconds("10000000000.5s")
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFromSecondsNanos(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds int64
		nanos   int32
		want    pose.TimeOffset
	}{
		{1, 500_000_000, 1_500_000_000},
		{0, 33_333_333, 33_333_333},
		{0, 0, 0},
		{-1, -250_000_000, -1_250_000_000},
		{0, -5, -5},
		{9_223_372_036, 854_775_807, pose.MaxTimeOffset},
		{-9_223_372_036, -854_775_807, -pose.MaxTimeOffset},
	}
	for _, tt := range tests {
		got, err := FromSecondsNanos(tt.seconds, tt.nanos)
		require.NoError(t, err, "%ds %dns", tt.seconds, tt.nanos)
		assert.Equal(t, tt.want, got, "%ds %dns", tt.seconds, tt.nanos)
	}
}

func TestFromSecondsNanosInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds int64
		nanos   int32
	}{
		{10_000_000_000, 0},
		{9_223_372_036, 854_775_808},
		{-9_223_372_037, 0},
		{1, -1},
		{-1, 1},
		{0, 1_000_000_000},
	}
	for _, tt := range tests {
		_, err := FromSecondsNanos(tt.seconds, tt.nanos)
		assert.Error(t, err, "%ds %dns", tt.seconds, tt.nanos)
	}
	_, err := FromSecondsNanos(10_000_000_000, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestBothSchemasAgree(t *testing.T) {
	t.Parallel()

	a, err := ParseDecimalSeconds("2.033333333s")
	require.NoError(t, err)
	b, err := FromSecondsNanos(2, 33_333_333)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestTimeFieldUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    pose.TimeOffset
		wantSet bool
	}{
		{"decimal string", `"1.25s"`, 1_250_000_000, true},
		{"pair", `{"seconds": 3, "nanos": 500}`, 3_000_000_500, true},
		{"pair with quoted seconds", `{"seconds": "7", "nanos": 1}`, 7_000_000_001, true},
		{"nanos only", `{"nanos": 40000000}`, 40_000_000, true},
		{"empty pair", `{}`, 0, true},
		{"bare number", `0.5`, 500_000_000, true},
		{"null", `null`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var tf timeField
			require.NoError(t, json.Unmarshal([]byte(tt.in), &tf))
			assert.Equal(t, tt.wantSet, tf.set)
			assert.Equal(t, tt.want, tf.value)
		})
	}
}

func TestTimeFieldUnmarshalErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		`"soon"`, `{"seconds": "x"}`, `{"seconds": 1.5}`, `true`,
		`"10000000000.5s"`, `{"seconds": "10000000000", "nanos": 5}`, `{"seconds": 1, "nanos": -1}`,
	} {
		var tf timeField
		assert.Error(t, json.Unmarshal([]byte(in), &tf), "input %s", in)
	}
}
