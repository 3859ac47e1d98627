package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "+15550001", want: "+15550001"},
		{in: " +1 (555) 000-1 ", want: "+15550001"},
		{in: "0062 812 3456 789", want: "+628123456789"},
		{in: "15550001", err: true},
		{in: "+0555000", err: true},
		{in: "", err: true},
		{in: "+1555abc0001", err: true},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.err {
			assert.ErrorIs(t, err, ErrInvalid, tc.in)
			continue
		}
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "+15****0001", Mask("+15550001"))
	assert.Equal(t, "****", Mask("+1555"))
}
