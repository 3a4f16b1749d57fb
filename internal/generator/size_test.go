package generator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tcs := []struct {
		name      string
		raw       string
		present   bool
		unbounded bool
		bytes     int64
		wantErr   bool
	}{
		{name: "omitted", present: false, unbounded: true},
		{name: "zero", raw: "0", present: true, unbounded: true},
		{name: "zero float", raw: "0.0", present: true, unbounded: true},
		{name: "integer", raw: "100", present: true, bytes: 100 * 1024 * 1024},
		{name: "fraction", raw: "0.5", present: true, bytes: 512 * 1024},
		{name: "rounds down", raw: "0.0000001", present: true, bytes: 0},
		{name: "maximum", raw: "1024", present: true, bytes: MaxSizeBytes},
		{name: "above maximum", raw: "1024.0001", present: true, wantErr: true},
		{name: "negative", raw: "-1", present: true, wantErr: true},
		{name: "nan", raw: "NaN", present: true, wantErr: true},
		{name: "infinity", raw: "Inf", present: true, wantErr: true},
		{name: "not a number", raw: "lots", present: true, wantErr: true},
		{name: "empty value", raw: "", present: true, wantErr: true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			size, err := ParseSize(tc.raw, tc.present)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.unbounded, size.Unbounded)
			assert.Equal(t, tc.bytes, size.Bytes)
		})
	}
}

func TestBounded(t *testing.T) {
	_, err := Bounded(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = Bounded(MaxSizeBytes + 1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	size, err := Bounded(0)
	require.NoError(t, err)
	assert.False(t, size.Unbounded)

	_, err = BoundedMB(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestSizeFilename(t *testing.T) {
	size, err := BoundedMB(100)
	require.NoError(t, err)
	assert.Equal(t, "testfile-100MB.bin", size.Filename())

	size, err = BoundedMB(0.5)
	require.NoError(t, err)
	assert.Equal(t, "testfile-0.5MB.bin", size.Filename())

	size, err = ParseSize("0.01", true)
	require.NoError(t, err)
	assert.EqualValues(t, 10485, size.Bytes)
	assert.Equal(t, "testfile-0.01MB.bin", size.Filename())

	size, err = Bounded(3 * 1024 * 1024)
	require.NoError(t, err)
	assert.Equal(t, "testfile-3MB.bin", size.Filename())

	assert.Equal(t, "testfile-unbounded.bin", Unbounded().Filename())
}
