package valueobjects

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "mindmap/pkg/errors"
)

func TestNewPosition(t *testing.T) {
	tests := []struct {
		name string
		x, y float64
		ok   bool
	}{
		{"origin", 0, 0, true},
		{"negative", -250.5, 1e6, true},
		{"NaN", math.NaN(), 0, false},
		{"infinite y", 0, math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPosition(tt.x, tt.y)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Position{X: tt.x, Y: tt.y}, p)
			assert.True(t, p.IsValid())
		})
	}
}

func TestPosition_Equals(t *testing.T) {
	p := Position{X: 250, Y: 150}

	assert.True(t, p.Equals(Position{X: 250, Y: 150}))
	assert.True(t, p.Equals(Position{X: 250 + 1e-12, Y: 150}))
	assert.False(t, p.Equals(Position{X: 250, Y: 151}))
	assert.False(t, p.Equals(Position{X: 250.001, Y: 150}))
}

func TestIDs(t *testing.T) {
	a, b := NewElementID(), NewElementID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)

	assert.True(t, IsValidDocumentID(NewDocumentID()))
	assert.False(t, IsValidDocumentID("doc-1"))
}
