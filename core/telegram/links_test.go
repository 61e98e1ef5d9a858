package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membo/vtubot/core/database/databasetest"
)

func TestLinksSaveAndFind(t *testing.T) {
	ctx := context.Background()
	links := NewLinks(databasetest.Open(t))

	_, err := links.ByUser(ctx, 7)
	assert.ErrorIs(t, err, ErrNotLinked)

	require.NoError(t, links.Save(ctx, "2348011111111", 7, 70))

	byUser, err := links.ByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2348011111111", byUser.PhoneNumber)
	assert.Equal(t, int64(70), byUser.ChatID)
	assert.False(t, byUser.LinkedAt.IsZero())

	byPhone, err := links.ByPhone(ctx, "2348011111111")
	require.NoError(t, err)
	assert.Equal(t, int64(7), byPhone.TGUserID)
}

func TestLinksSaveReplacesEitherSide(t *testing.T) {
	ctx := context.Background()
	links := NewLinks(databasetest.Open(t))

	require.NoError(t, links.Save(ctx, "2348011111111", 7, 70))
	// Same Telegram user, new number.
	require.NoError(t, links.Save(ctx, "2348022222222", 7, 70))
	_, err := links.ByPhone(ctx, "2348011111111")
	assert.ErrorIs(t, err, ErrNotLinked)

	// Same number, new Telegram account.
	require.NoError(t, links.Save(ctx, "2348022222222", 8, 80))
	_, err = links.ByUser(ctx, 7)
	assert.ErrorIs(t, err, ErrNotLinked)

	got, err := links.ByPhone(ctx, "2348022222222")
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.TGUserID)
	assert.Equal(t, int64(80), got.ChatID)
}
