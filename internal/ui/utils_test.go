package ui

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBound(t *testing.T) {
	b, err := ParseBound("150.5, -34, 151.0,-33.5")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{150.5, -34}, Max: orb.Point{151, -33.5}}, b)

	for _, bad := range []string{"", "1,2,3", "151,-34,150,-33", "a,b,c,d", "150,-34,190,-33"} {
		_, err := ParseBound(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Litoria fallax", "Crinia signifera"}, SplitList(" Litoria fallax,,Crinia signifera "))
	assert.Nil(t, SplitList(" , "))
}
