package matching

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistance_KnownPairs(t *testing.T) {
	// São Paulo -> Rio de Janeiro, roughly 360 km.
	d := Distance(-23.5505, -46.6333, -22.9068, -43.1729)
	require.InDelta(t, 360, d, 10)

	// São Paulo -> Guarulhos, roughly 15 km.
	d = Distance(-23.5505, -46.6333, -23.4543, -46.5337)
	require.InDelta(t, 15, d, 3)
}

func TestDistance_ZeroAndSymmetry(t *testing.T) {
	require.Zero(t, Distance(-23.5505, -46.6333, -23.5505, -46.6333))

	ab := Distance(-23.5505, -46.6333, -22.9068, -43.1729)
	ba := Distance(-22.9068, -43.1729, -23.5505, -46.6333)
	require.InDelta(t, ab, ba, 1e-9)
}
