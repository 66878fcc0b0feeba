package subscription

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsersDeduplicatesAcrossEntities(t *testing.T) {
	set := NewSet(
		Key{UserID: 10, EntityID: 5, Kind: Alerts},
		Key{UserID: 10, EntityID: 7, Kind: Alerts},
		Key{UserID: 11, EntityID: 7, Kind: Daily},
		Key{UserID: 12, EntityID: 9, Kind: Alerts},
	)

	require.Equal(t, []int64{10}, set.Users([]int64{5, 7}, Alerts))
	require.Equal(t, []int64{11}, set.Users([]int64{5, 7}, Daily))
	require.Empty(t, set.Users(nil, Alerts))
}

func TestEntitiesAndEntityIDs(t *testing.T) {
	set := NewSet(
		Key{UserID: 1, EntityID: 30, Kind: Daily},
		Key{UserID: 1, EntityID: 4, Kind: Daily},
		Key{UserID: 1, EntityID: 4, Kind: Alerts},
		Key{UserID: 2, EntityID: 8, Kind: Daily},
	)

	require.Equal(t, []int64{4, 30}, set.Entities(1, Daily))
	require.Equal(t, []int64{4}, set.Entities(1, Alerts))
	require.Equal(t, []int64{4, 8, 30}, set.EntityIDs(Daily))
	require.True(t, set.Has(Key{UserID: 2, EntityID: 8, Kind: Daily}))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Daily ")
	require.NoError(t, err)
	require.Equal(t, Daily, k)

	_, err = ParseKind("weekly")
	require.Error(t, err)
}
