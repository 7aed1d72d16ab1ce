package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/learnhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckoutFixture(t *testing.T) (*CheckoutService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	ledger := NewLedgerService(db)
	vouchers := NewVoucherService(db)
	cart := NewCartService(db)
	service := NewCheckoutService(db, nil, ledger, vouchers, cart)

	return service, mock, func() { db.Close() }
}

var cartColumns = []string{
	"id", "account_id", "item_kind", "item_id", "name", "price", "description", "thumbnail", "added_at",
}

var orderColumns = []string{
	"id", "reference", "account_id", "items", "subtotal", "discount", "total",
	"payment_method", "status", "voucher_code", "created_at", "completed_at",
}

func expectNoExistingOrder(mock sqlmock.Sqlmock, accountID, reference string) {
	mock.ExpectQuery("FROM orders").
		WithArgs(accountID, reference).
		WillReturnError(sql.ErrNoRows)
}

func TestCheckoutService_Process(t *testing.T) {
	t.Run("debits the discounted total and commits everything together", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		// Cart [{course A, 100}], voucher SAVE50 (fixed 50), balance 60:
		// the order totals 50 and 50 tokens leave the ledger.
		expectNoExistingOrder(mock, "acct-1", "ref-1")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Course A", int64(100), "", "", time.Now()))
		mock.ExpectQuery("FROM vouchers").
			WithArgs("SAVE50").
			WillReturnRows(voucherRow("SAVE50", models.DiscountFixed, 50, 0, nil, time.Now().Add(time.Hour), 10, 0, true))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(60)))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("acct-1", int64(-50), models.EntryKindPurchase, "Purchase of 1 item(s)", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO enrollments").
			WithArgs("acct-1", "course-a", models.EnrollmentActive).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE courses SET popularity").
			WithArgs("course-a").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE vouchers").
			WithArgs("SAVE50").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM cart_items").
			WithArgs("acct-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		order, err := service.Process(context.Background(), "acct-1", "ref-1", "SAVE50")
		require.NoError(t, err)
		assert.Equal(t, int64(100), order.Subtotal)
		assert.Equal(t, int64(50), order.Discount)
		assert.Equal(t, int64(50), order.Total)
		assert.Equal(t, models.OrderStatusCompleted, order.Status)
		assert.Len(t, order.Items, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance rejects before any write", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		// Same cart and voucher, balance 40 < total 50.
		expectNoExistingOrder(mock, "acct-1", "ref-2")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Course A", int64(100), "", "", time.Now()))
		mock.ExpectQuery("FROM vouchers").
			WithArgs("SAVE50").
			WillReturnRows(voucherRow("SAVE50", models.DiscountFixed, 50, 0, nil, time.Now().Add(time.Hour), 10, 0, true))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(40)))

		_, err := service.Process(context.Background(), "acct-1", "ref-2", "SAVE50")
		assertRule(t, err, RuleInsufficientFunds)

		// No transaction was ever opened.
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty cart is rejected", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		expectNoExistingOrder(mock, "acct-1", "ref-3")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns))

		_, err := service.Process(context.Background(), "acct-1", "ref-3", "")
		assertRule(t, err, RuleEmptyCart)
	})

	t.Run("retried reference returns the original order without a second debit", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		completed := time.Now()
		mock.ExpectQuery("FROM orders").
			WithArgs("acct-1", "ref-1").
			WillReturnRows(sqlmock.NewRows(orderColumns).
				AddRow("order-1", "ref-1", "acct-1", []byte(`[{"kind":"course","itemId":"course-a","name":"Course A","price":100}]`),
					int64(100), int64(50), int64(50), "tokens", models.OrderStatusCompleted, "SAVE50", completed, completed))

		order, err := service.Process(context.Background(), "acct-1", "ref-1", "SAVE50")
		require.NoError(t, err)
		assert.Equal(t, "order-1", order.ID)
		assert.Equal(t, int64(50), order.Total)

		// Nothing beyond the lookup ran: no cart read, no debit, no commit.
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a failed debit rolls the whole checkout back", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		expectNoExistingOrder(mock, "acct-1", "ref-4")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Course A", int64(100), "", "", time.Now()))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(500)))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		_, err := service.Process(context.Background(), "acct-1", "ref-4", "")
		require.Error(t, err)

		var se *StorageError
		assert.True(t, errors.As(err, &se))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a concurrent spend between read and debit is caught in the transaction", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		// The balance read passes, but another checkout drains the account
		// before the debit lands: the guarded insert matches zero rows and
		// the whole purchase rolls back.
		expectNoExistingOrder(mock, "acct-1", "ref-9")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Course A", int64(100), "", "", time.Now()))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(100)))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("acct-1", int64(-100), models.EntryKindPurchase, "Purchase of 1 item(s)", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.Process(context.Background(), "acct-1", "ref-9", "")
		assertRule(t, err, RuleInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exhausted voucher blocks the checkout", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		expectNoExistingOrder(mock, "acct-1", "ref-5")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Course A", int64(100), "", "", time.Now()))
		mock.ExpectQuery("FROM vouchers").
			WithArgs("GONE").
			WillReturnRows(voucherRow("GONE", models.DiscountFixed, 50, 0, nil, time.Now().Add(time.Hour), 5, 5, true))

		_, err := service.Process(context.Background(), "acct-1", "ref-5", "GONE")
		assertRule(t, err, RuleVoucherExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fixed discount larger than the subtotal clamps the total to zero", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		expectNoExistingOrder(mock, "acct-1", "ref-6")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Course A", int64(100), "", "", time.Now()))
		mock.ExpectQuery("FROM vouchers").
			WithArgs("MEGA").
			WillReturnRows(voucherRow("MEGA", models.DiscountFixed, 150, 0, nil, time.Now().Add(time.Hour), 10, 0, true))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(0)))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("acct-1", int64(0), models.EntryKindPurchase, "Purchase of 1 item(s)", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO enrollments").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE courses SET popularity").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE vouchers").
			WithArgs("MEGA").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM cart_items").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		order, err := service.Process(context.Background(), "acct-1", "ref-6", "MEGA")
		require.NoError(t, err)
		assert.Equal(t, int64(100), order.Discount)
		assert.Equal(t, int64(0), order.Total)
	})

	t.Run("unknown balance aborts instead of assuming zero", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		expectNoExistingOrder(mock, "acct-1", "ref-7")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindCourse, "course-a", "Course A", int64(100), "", "", time.Now()))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("acct-1").
			WillReturnError(errors.New("read timeout"))

		_, err := service.Process(context.Background(), "acct-1", "ref-7", "")
		require.Error(t, err)

		var se *StorageError
		assert.True(t, errors.As(err, &se))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exams do not enroll, only courses do", func(t *testing.T) {
		service, mock, closeDB := newCheckoutFixture(t)
		defer closeDB()

		expectNoExistingOrder(mock, "acct-1", "ref-8")
		mock.ExpectQuery("FROM cart_items").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(cartColumns).
				AddRow(int64(1), "acct-1", models.ItemKindExam, "exam-b", "Go Certification", int64(250), "", "", time.Now()))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(300)))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("acct-1", int64(-250), models.EntryKindPurchase, "Purchase of 1 item(s)", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		// No enrollment insert for the exam item.
		mock.ExpectExec("UPDATE courses SET popularity").
			WithArgs("exam-b").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM cart_items").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		order, err := service.Process(context.Background(), "acct-1", "ref-8", "")
		require.NoError(t, err)
		assert.Equal(t, int64(250), order.Total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCheckoutService_ListOrders(t *testing.T) {
	service, mock, closeDB := newCheckoutFixture(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectQuery("FROM orders").
		WithArgs("acct-1", 20).
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("order-2", "ref-2", "acct-1", []byte(`[]`), int64(250), int64(0), int64(250), "tokens", models.OrderStatusCompleted, "", now, now).
			AddRow("order-1", "ref-1", "acct-1", []byte(`[]`), int64(100), int64(50), int64(50), "tokens", models.OrderStatusCompleted, "SAVE50", now.Add(-time.Hour), now))

	orders, err := service.ListOrders(context.Background(), "acct-1", 20)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Equal(t, "order-2", orders[0].ID)
	assert.Equal(t, "SAVE50", orders[1].VoucherCode)
}
