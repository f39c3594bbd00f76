package edge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatedTimeFromUUID(t *testing.T) {
	t.Run("time based v1 identifier", func(t *testing.T) {
		before := time.Now().UnixMilli()
		id, err := uuid.NewUUID()
		require.NoError(t, err)
		after := time.Now().UnixMilli()

		ts := CreatedTimeFromUUID(id)
		assert.GreaterOrEqual(t, ts, before)
		assert.LessOrEqual(t, ts, after)
	})

	t.Run("time based v7 identifier", func(t *testing.T) {
		before := time.Now().UnixMilli()
		id, err := uuid.NewV7()
		require.NoError(t, err)
		after := time.Now().UnixMilli()

		ts := CreatedTimeFromUUID(id)
		assert.GreaterOrEqual(t, ts, before)
		assert.LessOrEqual(t, ts, after)
	})

	t.Run("random identifier has no embedded time", func(t *testing.T) {
		assert.Equal(t, int64(0), CreatedTimeFromUUID(uuid.New()))
	})
}

func TestParseEntityType(t *testing.T) {
	got, err := ParseEntityType("ENTITY_VIEW")
	require.NoError(t, err)
	assert.Equal(t, EntityTypeEntityView, got)

	_, err = ParseEntityType("DASHBOARD")
	assert.Error(t, err)
}

func TestEntityID_String(t *testing.T) {
	id := uuid.MustParse("11111111-2222-1333-8444-555555555555")
	ref := NewEntityID(EntityTypeAsset, id)
	assert.Equal(t, "ASSET:11111111-2222-1333-8444-555555555555", ref.String())
	assert.False(t, ref.IsNull())
	assert.True(t, NewEntityID(EntityTypeCustomer, NullUUID).IsNull())
}
