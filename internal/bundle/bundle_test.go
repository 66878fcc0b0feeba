package bundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackGreedyExample(t *testing.T) {
	blocks := []string{strings.Repeat("A", 10), strings.Repeat("B", 10), strings.Repeat("C", 10)}
	got := Pack(blocks, 25)
	require.Equal(t, []string{"AAAAAAAAAA\nBBBBBBBBBB", "CCCCCCCCCC"}, got)
}

func TestPackOversizedBlockStandsAlone(t *testing.T) {
	big := strings.Repeat("x", 40)
	got := Pack([]string{"a", big, "b", "c"}, 10)
	require.Equal(t, []string{"a", big, "b\nc"}, got)
}

func TestPackExactFit(t *testing.T) {
	got := Pack([]string{"1234", "5678"}, 9)
	require.Equal(t, []string{"1234\n5678"}, got)

	got = Pack([]string{"1234", "5678"}, 8)
	require.Equal(t, []string{"1234", "5678"}, got)
}

func TestPackCountsRunes(t *testing.T) {
	got := Pack([]string{"ééé", "üüü"}, 7)
	require.Equal(t, []string{"ééé\nüüü"}, got)
}

func TestPackProperties(t *testing.T) {
	blocks := []string{
		"alpha", "beta", strings.Repeat("g", 31), "delta", "epsilon", "zeta", "eta",
		"theta", strings.Repeat("i", 12), "kappa", "l", "mu",
	}
	const max = 16
	bundles := Pack(blocks, max)

	// Order and content survive.
	var joined []string
	for _, b := range bundles {
		joined = append(joined, strings.Split(b, Separator)...)
	}
	require.Equal(t, blocks, joined)

	for i, b := range bundles {
		if Len(b) > max {
			require.NotContains(t, b, Separator, "only a single oversized block may exceed the limit")
		}
		// Greedy: the next block could not have been appended.
		if i+1 < len(bundles) && Len(b) <= max {
			next := strings.SplitN(bundles[i+1], Separator, 2)[0]
			require.Greater(t, Len(b)+1+Len(next), max)
		}
	}
}

func TestPackEmpty(t *testing.T) {
	require.Empty(t, Pack(nil, 10))
	require.Empty(t, Pack([]string{"", ""}, 10))
}
