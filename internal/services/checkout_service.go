package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/learnhub/backend/internal/audit"
	"github.com/learnhub/backend/internal/models"
)

// CheckoutService converts a cart into a paid order as one unit of work:
// order row, ledger debit, enrollments, popularity counters, voucher
// redemption and cart clearing all commit or roll back together.
type CheckoutService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	vouchers  *VoucherService
	cart      *CartService
	audit     *audit.AuditLogger
	validator *ValidationHelper
}

func NewCheckoutService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, vouchers *VoucherService, cart *CartService) *CheckoutService {
	return &CheckoutService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		vouchers:  vouchers,
		cart:      cart,
		audit:     audit.NewAuditLogger(),
		validator: NewValidationHelper(),
	}
}

// Process executes one checkout attempt. The reference is the caller's
// idempotency key: a retried attempt that already produced an order
// returns that order instead of debiting again.
func (s *CheckoutService) Process(ctx context.Context, accountID, reference, voucherCode string) (*models.Order, error) {
	if reference == "" {
		reference = fmt.Sprintf("CHK-%d", time.Now().UnixNano())
	}

	// Idempotency short-circuit (crash between debit and response, or a
	// client retry, must not double-debit).
	if existing, err := s.fetchOrderByReference(ctx, accountID, reference); err == nil {
		log.Printf("[CHECKOUT] Duplicate checkout detected: %s, order: %s", reference, existing.ID)
		return existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("order lookup", err)
	}

	items, subtotal, err := s.cart.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ruleViolation(RuleEmptyCart, "cart is empty")
	}

	var discount int64
	if voucherCode != "" {
		discount, _, err = s.vouchers.Validate(ctx, voucherCode, subtotal)
		if err != nil {
			return nil, err
		}
	}

	total := subtotal - discount
	if total < 0 {
		total = 0
	}

	// Balance is derived from the ledger; a read failure means the
	// balance is unknown and the purchase must not be approved.
	balance, err := s.ledger.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance < total {
		return nil, ruleViolation(RuleInsufficientFunds,
			"insufficient balance: have %d tokens, need %d", balance, total)
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		Reference:     reference,
		AccountID:     accountID,
		Items:         snapshotItems(items),
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         total,
		PaymentMethod: "tokens",
		Status:        models.OrderStatusCompleted,
		VoucherCode:   voucherCode,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin checkout", err)
	}
	defer tx.Rollback()

	if err := s.insertOrderTx(tx, order); err != nil {
		return nil, err
	}

	// The debit re-checks the derived balance inside the transaction; the
	// read above only produces the friendly have/need message.
	if err := s.ledger.RecordDebitTx(tx, accountID, -total, models.EntryKindPurchase,
		fmt.Sprintf("Purchase of %d item(s)", len(items)), order.ID); err != nil {
		return nil, err
	}

	for _, item := range items {
		// Exam access flows from the order itself; only courses enroll.
		if item.ItemKind != models.ItemKindCourse {
			continue
		}
		if err := s.upsertEnrollmentTx(tx, accountID, item.ItemID); err != nil {
			return nil, err
		}
	}

	for _, item := range items {
		if _, err := tx.Exec(`UPDATE courses SET popularity = popularity + 1 WHERE id = $1`, item.ItemID); err != nil {
			return nil, storageErr("popularity update", err)
		}
	}

	if voucherCode != "" {
		if err := s.vouchers.RedeemTx(tx, voucherCode); err != nil {
			return nil, err
		}
	}

	if err := s.cart.ClearTx(tx, accountID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit checkout", err)
	}

	s.audit.LogCheckout(order.ID, accountID, total, voucherCode)
	s.queueOrderEvent(ctx, order)

	return order, nil
}

func snapshotItems(items []models.CartItem) models.LineItems {
	snapshot := make(models.LineItems, 0, len(items))
	for _, it := range items {
		snapshot = append(snapshot, models.LineItem{
			Kind:   it.ItemKind,
			ItemID: it.ItemID,
			Name:   it.Name,
			Price:  it.Price,
		})
	}
	return snapshot
}

func (s *CheckoutService) insertOrderTx(tx *sql.Tx, order *models.Order) error {
	err := tx.QueryRow(`
		INSERT INTO orders (id, reference, account_id, items, subtotal, discount, total, payment_method, status, voucher_code, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NOW(), NOW())
		RETURNING created_at`,
		order.ID, order.Reference, order.AccountID, order.Items, order.Subtotal,
		order.Discount, order.Total, order.PaymentMethod, order.Status, order.VoucherCode,
	).Scan(&order.CreatedAt)
	if err != nil {
		return storageErr("order insert", err)
	}
	order.CompletedAt = &order.CreatedAt
	return nil
}

// upsertEnrollmentTx creates the enrollment, or refreshes it if the
// account bought the course before. Keyed on (account_id, course_id),
// so a retried purchase never duplicates access.
func (s *CheckoutService) upsertEnrollmentTx(tx *sql.Tx, accountID, courseID string) error {
	_, err := tx.Exec(`
		INSERT INTO enrollments (account_id, course_id, status, progress, completed_lessons, enrolled_at)
		VALUES ($1, $2, $3, 0, '{}', NOW())
		ON CONFLICT (account_id, course_id)
		DO UPDATE SET status = EXCLUDED.status, enrolled_at = NOW()`,
		accountID, courseID, models.EnrollmentActive)
	if err != nil {
		return storageErr("enrollment upsert", err)
	}
	return nil
}

func (s *CheckoutService) fetchOrderByReference(ctx context.Context, accountID, reference string) (*models.Order, error) {
	return s.scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, reference, account_id, items, subtotal, discount, total, payment_method, status, COALESCE(voucher_code, ''), created_at, completed_at
		FROM orders
		WHERE account_id = $1 AND reference = $2`, accountID, reference))
}

// FetchOrder returns one order owned by the account.
func (s *CheckoutService) FetchOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	return s.scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, reference, account_id, items, subtotal, discount, total, payment_method, status, COALESCE(voucher_code, ''), created_at, completed_at
		FROM orders
		WHERE account_id = $1 AND id = $2`, accountID, orderID))
}

func (s *CheckoutService) scanOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.Reference, &o.AccountID, &o.Items, &o.Subtotal, &o.Discount,
		&o.Total, &o.PaymentMethod, &o.Status, &o.VoucherCode, &o.CreatedAt, &o.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns the account's orders, newest first.
func (s *CheckoutService) ListOrders(ctx context.Context, accountID string, limit int) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference, account_id, items, subtotal, discount, total, payment_method, status, COALESCE(voucher_code, ''), created_at, completed_at
		FROM orders
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, storageErr("order query", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.Reference, &o.AccountID, &o.Items, &o.Subtotal, &o.Discount,
			&o.Total, &o.PaymentMethod, &o.Status, &o.VoucherCode, &o.CreatedAt, &o.CompletedAt); err != nil {
			return nil, storageErr("order scan", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("order rows", err)
	}

	return orders, nil
}

// queueOrderEvent pushes the completed order onto the notification queue
// after commit, best-effort.
func (s *CheckoutService) queueOrderEvent(ctx context.Context, order *models.Order) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := s.redis.RPush(ctx, "order_events", data).Err(); err != nil {
		log.Printf("[CHECKOUT] Failed to queue order event for %s: %v", order.ID, err)
	}
}

// ProcessHandler runs a checkout for the caller's cart
// @Summary Checkout
// @Description Converts the caller's cart into a paid order as one atomic unit
// @Tags checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{reference=string,voucherCode=string} true "Checkout request"
// @Success 201 {object} object{success=bool,orderId=string}
// @Failure 422 {object} services.ErrorResponse
// @Router /checkout [post]
func (s *CheckoutService) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Reference   string `json:"reference" validate:"max=64"`
		VoucherCode string `json:"voucherCode" validate:"max=40"`
	}

	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	order, err := s.Process(r.Context(), accountID, req.Reference, req.VoucherCode)
	if err != nil {
		s.audit.LogError(req.Reference, accountID, err)
		SendCoreError(w, err)
		return
	}

	SendJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"orderId": order.ID,
		"total":   order.Total,
	})
}

// ListOrdersHandler returns the caller's orders
// @Summary List orders
// @Tags checkout
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{orders=[]models.Order,count=int}
// @Router /orders [get]
func (s *CheckoutService) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orders, err := s.ListOrders(r.Context(), accountID, 50)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch orders", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetOrderHandler returns one order
// @Summary Get order by ID
// @Tags checkout
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Success 200 {object} models.Order
// @Failure 404 {object} services.ErrorResponse
// @Router /orders/{orderId} [get]
func (s *CheckoutService) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orderID := chi.URLParam(r, "orderId")
	order, err := s.FetchOrder(r.Context(), accountID, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch order", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, order)
}
