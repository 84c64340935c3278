package memdb

import (
	"context"
	"testing"

	"github.com/rtemka/blog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB создает хранилище и один пост для тестов
func newTestDB(t *testing.T) (*MemDB, domain.Post) {
	t.Helper()

	db := New()
	p := domain.Post{Title: "Test Post", Body: "Content"}
	require.NoError(t, db.AddPost(context.Background(), &p))
	return db, p
}

func TestMemDB_Posts(t *testing.T) {
	db, p := newTestDB(t)
	ctx := context.Background()

	got, err := db.Post(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = db.Post(ctx, 999999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p2 := domain.Post{Title: "Newer", Body: "Content"}
	require.NoError(t, db.AddPost(ctx, &p2))

	posts, err := db.Posts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, p2.ID, posts[0].ID, "newest post goes first")
}

func TestMemDB_Visibility(t *testing.T) {
	db, p := newTestDB(t)
	ctx := context.Background()

	c := domain.Comment{PostID: p.ID, Author: "Ann", Body: "Hi"}
	require.NoError(t, db.AddComment(ctx, &c))
	assert.Equal(t, domain.Pending, c.Status)

	// неодобренный комментарий не виден на публичном пути
	coms, err := db.Comments(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, coms)

	pending, err := db.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)
	assert.Equal(t, p.Title, pending[0].PostTitle)

	// одобрение идемпотентно
	for i := 0; i < 2; i++ {
		got, err := db.Approve(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.Approved, got.Status)
	}

	coms, err = db.Comments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, coms, 1)
	assert.Equal(t, c.ID, coms[0].ID)

	pending, err = db.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemDB_ReferentialIntegrity(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	c := domain.Comment{PostID: 999999, Author: "A", Body: "B"}
	assert.ErrorIs(t, db.AddComment(ctx, &c), domain.ErrNotFound)

	_, err := db.Comments(ctx, 999999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = db.Approve(ctx, 999999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemDB_Validation(t *testing.T) {
	db, p := newTestDB(t)
	ctx := context.Background()

	bad := domain.Post{Title: "  ", Body: "  "}
	assert.ErrorIs(t, db.AddPost(ctx, &bad), domain.ErrValidation)

	c := domain.Comment{PostID: p.ID, Author: "", Body: "x"}
	assert.ErrorIs(t, db.AddComment(ctx, &c), domain.ErrValidation)
}
