package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangfeng/cherrycake-gateway/pkg/models"
)

func TestInMemoryProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryProductRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	shoes := &models.Product{Slug: "red-shoes", Name: "Red shoes", Attributes: map[string]string{"size": "42"}}
	require.NoError(t, repo.Create(ctx, shoes))
	assert.NotEmpty(t, shoes.ID)
	require.NoError(t, repo.Create(ctx, &models.Product{Slug: "blue-hat", Name: "Blue hat"}))
	require.NoError(t, repo.Create(ctx, &models.Product{Slug: "green-scarf", Name: "Green scarf"}))

	assert.ErrorIs(t, repo.Create(ctx, &models.Product{Slug: "red-shoes"}), ErrDuplicateSlug)

	got, err := repo.GetBySlug(ctx, "red-shoes")
	require.NoError(t, err)
	assert.Equal(t, shoes.ID, got.ID)
	got.Attributes["size"] = "44"

	again, err := repo.GetByID(ctx, shoes.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", again.Attributes["size"], "returned products are copies")

	page, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "blue-hat", page[0].Slug)

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	beyond, err := repo.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, repo.Delete(ctx, shoes.ID))
	_, err = repo.GetBySlug(ctx, "red-shoes")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, shoes.ID), ErrNotFound)
	require.NoError(t, repo.Create(ctx, &models.Product{Slug: "red-shoes", Name: "Red shoes v2"}))
}
