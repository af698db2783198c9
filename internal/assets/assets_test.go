package assets

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
	"github.com/DoyleJ11/nonetomourn-server/internal/store/memstore"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.EnsureItem(ctx, store.Item{Name: "Pistol", AssetPath: "weapons/pistol.png"}))
	require.NoError(t, st.EnsureItem(ctx, store.Item{Name: "Shotgun", AssetPath: "weapons/shotgun.png"}))
	require.NoError(t, st.EnsureItem(ctx, store.Item{Name: "Escape", AssetPath: "../secret"}))

	files := fstest.MapFS{
		"weapons/pistol.png": {Data: []byte("png-bytes")},
	}
	srv := New(files, st)

	a, err := srv.Load(ctx, "pistol")
	require.NoError(t, err)
	assert.Equal(t, "pistol.png", a.Name)
	assert.Equal(t, "image/png", a.ContentType)
	assert.Equal(t, []byte("png-bytes"), a.Data)

	_, err = srv.Load(ctx, "Rifle")
	require.ErrorIs(t, err, engine.ErrItemNotFound)

	_, err = srv.Load(ctx, "Shotgun")
	require.ErrorIs(t, err, engine.ErrAssetUnavailable)
	assert.Equal(t, "IOError", engine.Code(err))

	_, err = srv.Load(ctx, "Escape")
	require.ErrorIs(t, err, engine.ErrAssetUnavailable)
}
