package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindMatchesExactCode(t *testing.T) {
	t.Parallel()

	matches := FindMatches("FL")
	require.Len(t, matches, 1)
	require.Equal(t, "florida", matches[0].Name)

	matches = FindMatches("fl")
	require.Len(t, matches, 1)
	require.Equal(t, "FL", matches[0].Code)
}

func TestFindMatchesByNameFragment(t *testing.T) {
	t.Parallel()

	matches := FindMatches("flor")
	require.NotEmpty(t, matches)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Name)
	}
	require.Contains(t, names, "florida")
}

func TestFindMatchesCapsResults(t *testing.T) {
	t.Parallel()

	// "a" hits most of the table; the cap keeps the typeahead short
	matches := FindMatches("a")
	require.Len(t, matches, 5)
}

func TestFindMatchesKeepsTableOrder(t *testing.T) {
	t.Parallel()

	matches := FindMatches("w")
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Name)
	}
	require.Equal(t, []string{"delaware", "hawaii", "iowa", "new hampshire", "new jersey"}, names)

	matches = FindMatches("new")
	require.NotEmpty(t, matches)
	require.Equal(t, "new hampshire", matches[0].Name)
}

func TestFindMatchesEmptyQuery(t *testing.T) {
	t.Parallel()

	require.Empty(t, FindMatches(""))
	require.Empty(t, FindMatches("   "))
}

func TestStateCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, "FL", StateCode("florida"))
	require.Equal(t, "FL", StateCode("FL"))
	require.Equal(t, "DC", StateCode("District of Columbia"))
	require.Empty(t, StateCode("florid"))
	require.Empty(t, StateCode(""))
}
