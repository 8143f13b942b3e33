package records

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.json")
	return NewStore(NewFileBackend(path)), path
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store, _ := newFileStore(t)

	rs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestLoadMalformedFileIsEmpty(t *testing.T) {
	store, path := newFileStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	rs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs)

	_, err = store.Backend().Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestPutThenFreshLoad(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)
	rec := Record{ID: "KIT-9", Status: "active", RenewalDate: "2030-01-01", FavoritedBy: []UserID{42, 7}}
	require.NoError(t, store.Put(ctx, rec))

	fresh := NewStore(NewFileBackend(path))
	got, err := fresh.Get(ctx, "KIT-9")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestGetMissing(t *testing.T) {
	store, _ := newFileStore(t)
	_, err := store.Get(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	for _, id := range []string{"KIT-3", "KIT-1", "KIT-2"} {
		require.NoError(t, store.Put(ctx, Record{ID: id, Status: "active"}))
	}

	found, err := store.Delete(ctx, "KIT-2")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Delete(ctx, "KIT-2")
	require.NoError(t, err)
	assert.False(t, found)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "KIT-1", list[0].ID)
	assert.Equal(t, "KIT-3", list[1].ID)
}

func TestUpdateRecordKeepsIDAndFavorites(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	require.NoError(t, store.Put(ctx, Record{ID: "KIT-9", Status: "active", RenewalDate: "2030-01-01", FavoritedBy: []UserID{5}}))

	require.NoError(t, store.UpdateRecord(ctx, "KIT-9", "2030-02-02", "suspended"))

	got, err := store.Get(ctx, "KIT-9")
	require.NoError(t, err)
	assert.Equal(t, Record{ID: "KIT-9", Status: "suspended", RenewalDate: "2030-02-02", FavoritedBy: []UserID{5}}, got)

	err = store.UpdateRecord(ctx, "GONE", "2030-02-02", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddFavoriteIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	require.NoError(t, store.Put(ctx, Record{ID: "KIT-1", Status: "active", RenewalDate: "2030-01-01"}))

	res, err := store.AddFavorite(ctx, "KIT-1", 42)
	require.NoError(t, err)
	assert.Equal(t, FavoriteAdded, res)

	res, err = store.AddFavorite(ctx, "KIT-1", 42)
	require.NoError(t, err)
	assert.Equal(t, FavoriteExists, res)

	got, err := store.Get(ctx, "KIT-1")
	require.NoError(t, err)
	assert.Equal(t, []UserID{42}, got.FavoritedBy)
}

func TestAddFavoriteCreatesPlaceholder(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)

	res, err := store.AddFavorite(ctx, "KIT-404", 1)
	require.NoError(t, err)
	assert.Equal(t, FavoriteAdded, res)

	got, err := store.Get(ctx, "KIT-404")
	require.NoError(t, err)
	assert.Empty(t, got.Status)
	assert.Empty(t, got.RenewalDate)
	assert.Equal(t, []UserID{1}, got.FavoritedBy)
}

func TestConcurrentFavoritesAreNotLost(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	require.NoError(t, store.Put(ctx, Record{ID: "KIT-1", Status: "active"}))

	const users = 32
	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(u UserID) {
			defer wg.Done()
			_, err := store.AddFavorite(ctx, "KIT-1", u)
			assert.NoError(t, err)
		}(UserID(i))
	}
	wg.Wait()

	got, err := store.Get(ctx, "KIT-1")
	require.NoError(t, err)
	require.Len(t, got.FavoritedBy, users)
	for i := 1; i <= users; i++ {
		assert.True(t, got.HasFavorite(UserID(i)), "user %d lost", i)
	}
}

func TestFavoritesOf(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	require.NoError(t, store.Put(ctx, Record{ID: "KIT-2", RenewalDate: "2030-01-02", FavoritedBy: []UserID{1, 2}}))
	require.NoError(t, store.Put(ctx, Record{ID: "KIT-1", RenewalDate: "2030-01-01", FavoritedBy: []UserID{1}}))
	require.NoError(t, store.Put(ctx, Record{ID: "KIT-3", RenewalDate: "2030-01-03", FavoritedBy: []UserID{2}}))

	favs, err := store.FavoritesOf(ctx, 1)
	require.NoError(t, err)
	var ids []string
	for _, r := range favs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"KIT-1", "KIT-2"}, ids)

	favs, err = store.FavoritesOf(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestLoadReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	require.NoError(t, store.Put(ctx, Record{ID: "KIT-1", FavoritedBy: []UserID{1}}))

	rs, err := store.Load(ctx)
	require.NoError(t, err)
	rec := rs["KIT-1"]
	rec.FavoritedBy[0] = 99
	delete(rs, "KIT-1")

	got, err := store.Get(ctx, "KIT-1")
	require.NoError(t, err)
	assert.Equal(t, []UserID{1}, got.FavoritedBy)
}

func TestUpdateWithoutChangeSkipsSave(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{rs: Records{}}
	store := NewStore(backend)

	require.NoError(t, store.Update(ctx, func(Records) (bool, error) { return false, nil }))
	assert.Equal(t, 0, backend.saves)

	boom := fmt.Errorf("boom")
	err := store.Update(ctx, func(Records) (bool, error) { return true, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, backend.saves)

	require.NoError(t, store.Update(ctx, func(Records) (bool, error) { return true, nil }))
	assert.Equal(t, 1, backend.saves)
}

type countingBackend struct {
	rs    Records
	saves int
}

func (b *countingBackend) Load(context.Context) (Records, error) { return b.rs.clone(), nil }

func (b *countingBackend) Save(_ context.Context, rs Records) error {
	b.saves++
	b.rs = rs.clone()
	return nil
}

func (b *countingBackend) Name() string { return "counting" }
