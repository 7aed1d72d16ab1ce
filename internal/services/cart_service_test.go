package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/learnhub/backend/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartService_Add(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewCartService(db)

	t.Run("snapshots the catalog price at add time", func(t *testing.T) {
		mock.ExpectQuery("FROM courses").
			WithArgs("course-a").
			WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name", "price", "description", "thumbnail"}).
				AddRow("course-a", models.ItemKindCourse, "Intro to Go", int64(100), "A first course", ""))
		mock.ExpectQuery("INSERT INTO cart_items").
			WithArgs("acct-1", models.ItemKindCourse, "course-a", "Intro to Go", int64(100), "A first course", "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "added_at"}).AddRow(int64(1), time.Now()))

		item, err := service.Add(context.Background(), "acct-1", "course-a")
		require.NoError(t, err)
		assert.Equal(t, int64(100), item.Price)
		assert.Equal(t, "acct-1", item.AccountID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing catalog row is not-found", func(t *testing.T) {
		mock.ExpectQuery("FROM courses").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name", "price", "description", "thumbnail"}))

		_, err := service.Add(context.Background(), "acct-1", "ghost")
		assertRule(t, err, RuleNotFound)
	})

	t.Run("second add of the same item hits the unique index", func(t *testing.T) {
		mock.ExpectQuery("FROM courses").
			WithArgs("course-a").
			WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name", "price", "description", "thumbnail"}).
				AddRow("course-a", models.ItemKindCourse, "Intro to Go", int64(100), "A first course", ""))
		mock.ExpectQuery("INSERT INTO cart_items").
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := service.Add(context.Background(), "acct-1", "course-a")
		assertRule(t, err, RuleDuplicateItem)
	})
}

func TestCartService_Remove(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewCartService(db)

	t.Run("removes one item", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM cart_items").
			WithArgs("acct-1", "course-a").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.Remove(context.Background(), "acct-1", "course-a"))
	})

	t.Run("removing an absent item is not-found", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM cart_items").
			WithArgs("acct-1", "course-z").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.Remove(context.Background(), "acct-1", "course-z")
		assertRule(t, err, RuleNotFound)
	})
}

func TestCartService_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewCartService(db)

	t.Run("subtotal is the sum of snapshotted prices", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "account_id", "item_kind", "item_id", "name", "price", "description", "thumbnail", "added_at",
			}).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Intro to Go", int64(100), "", "", now).
				AddRow(int64(2), "acct-1", models.ItemKindExam, "exam-b", "Go Certification", int64(250), "", "", now))

		items, subtotal, err := service.List(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.Len(t, items, 2)
		assert.Equal(t, int64(350), subtotal)
	})

	t.Run("empty cart lists as an empty slice, not nil", func(t *testing.T) {
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-2").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "account_id", "item_kind", "item_id", "name", "price", "description", "thumbnail", "added_at",
			}))

		items, subtotal, err := service.List(context.Background(), "acct-2")
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
		assert.Equal(t, int64(0), subtotal)
	})
}
