package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/startide/server/internal/database"
	"github.com/startide/server/internal/model"
	"github.com/startide/server/pkg/game"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	db, err := database.OpenSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Notification{}))
	return NewStore(db), db
}

func seedNotifications(t *testing.T, db *gorm.DB, playerID uint, count int, kind string) {
	t.Helper()
	for i := 0; i < count; i++ {
		n := model.Notification{
			PlayerID: playerID,
			Type:     kind,
			Message:  fmt.Sprintf("%s #%d", kind, i),
			Tick:     uint64(i),
		}
		require.NoError(t, db.Create(&n).Error)
	}
}

func TestListPagesNewestFirst(t *testing.T) {
	store, db := newTestStore(t)
	seedNotifications(t, db, 1, 7, "ship_arrived")

	page, err := store.List(1, Query{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, int64(7), page.Total)
	assert.Greater(t, page.Items[0].ID, page.Items[1].ID)
	require.NotZero(t, page.NextCursor)

	page2, err := store.List(1, Query{Cursor: page.NextCursor, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page2.Items, 3)
	assert.Less(t, page2.Items[0].ID, page.Items[2].ID)

	page3, err := store.List(1, Query{Cursor: page2.NextCursor, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
	assert.Zero(t, page3.NextCursor)
}

func TestListFiltersByTypeAndUnread(t *testing.T) {
	store, db := newTestStore(t)
	seedNotifications(t, db, 1, 3, "ship_arrived")
	seedNotifications(t, db, 1, 2, "battle_ended")

	page, err := store.List(1, Query{Type: "battle_ended"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Total)

	_, err = store.MarkAllRead(1)
	require.NoError(t, err)

	page, err = store.List(1, Query{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func TestListScopedToPlayer(t *testing.T) {
	store, db := newTestStore(t)
	seedNotifications(t, db, 1, 2, "ship_arrived")
	seedNotifications(t, db, 2, 4, "ship_arrived")

	page, err := store.List(1, Query{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	for _, n := range page.Items {
		assert.Equal(t, uint(1), n.PlayerID)
	}
}

func TestListRejectsOversizedLimit(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.List(1, Query{Limit: MaxLimit + 1})

	require.Error(t, err)
	assert.Equal(t, game.FailValidation, game.KindOf(err))
}

func TestMarkReadScopedToPlayer(t *testing.T) {
	store, db := newTestStore(t)
	seedNotifications(t, db, 1, 1, "ship_arrived")
	seedNotifications(t, db, 2, 1, "ship_arrived")

	var other model.Notification
	require.NoError(t, db.Where("player_id = ?", 2).First(&other).Error)

	changed, err := store.MarkRead(1, []uint{other.ID})
	require.NoError(t, err)
	assert.Zero(t, changed)

	var got model.Notification
	require.NoError(t, db.First(&got, other.ID).Error)
	assert.False(t, got.Read)
}

func TestMarkReadEmptyIDsIsANoOp(t *testing.T) {
	store, _ := newTestStore(t)
	changed, err := store.MarkRead(1, nil)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
