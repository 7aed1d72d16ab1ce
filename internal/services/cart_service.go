package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/learnhub/backend/internal/models"
	"github.com/lib/pq"
)

// CartService manages the per-account cart. Prices are snapshotted from
// the catalog at add time; checkout consumes and clears the cart.
type CartService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewCartService(db *sql.DB) *CartService {
	return &CartService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// Add puts one catalog item into the account's cart. The unique index on
// (account_id, item_id) rejects a second add of the same item.
func (s *CartService) Add(ctx context.Context, accountID, itemID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, price, description, thumbnail
		FROM courses
		WHERE id = $1`, itemID,
	).Scan(&item.ItemID, &item.ItemKind, &item.Name, &item.Price, &item.Description, &item.Thumbnail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ruleViolation(RuleNotFound, "item %s not found", itemID)
		}
		return nil, storageErr("catalog lookup", err)
	}

	item.AccountID = accountID
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (account_id, item_kind, item_id, name, price, description, thumbnail, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, added_at`,
		accountID, item.ItemKind, item.ItemID, item.Name, item.Price, item.Description, item.Thumbnail,
	).Scan(&item.ID, &item.AddedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ruleViolation(RuleDuplicateItem, "item is already in the cart")
		}
		return nil, storageErr("cart insert", err)
	}

	return &item, nil
}

// Remove deletes one item from the account's cart.
func (s *CartService) Remove(ctx context.Context, accountID, itemID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE account_id = $1 AND item_id = $2`,
		accountID, itemID)
	if err != nil {
		return storageErr("cart delete", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("cart delete", err)
	}
	if rowsAffected == 0 {
		return ruleViolation(RuleNotFound, "item is not in the cart")
	}
	return nil
}

// List returns the cart contents and the subtotal.
func (s *CartService) List(ctx context.Context, accountID string) ([]models.CartItem, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, item_kind, item_id, name, price, description, thumbnail, added_at
		FROM cart_items
		WHERE account_id = $1
		ORDER BY added_at`, accountID)
	if err != nil {
		return nil, 0, storageErr("cart query", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	var subtotal int64
	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.AccountID, &it.ItemKind, &it.ItemID, &it.Name,
			&it.Price, &it.Description, &it.Thumbnail, &it.AddedAt); err != nil {
			return nil, 0, storageErr("cart scan", err)
		}
		subtotal += it.Price
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("cart rows", err)
	}

	return items, subtotal, nil
}

// Clear empties the account's cart.
func (s *CartService) Clear(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE account_id = $1`, accountID); err != nil {
		return storageErr("cart clear", err)
	}
	return nil
}

// ClearTx empties the cart inside the checkout transaction, so the cart
// survives untouched when the purchase rolls back.
func (s *CartService) ClearTx(tx *sql.Tx, accountID string) error {
	if _, err := tx.Exec(`DELETE FROM cart_items WHERE account_id = $1`, accountID); err != nil {
		return storageErr("cart clear", err)
	}
	return nil
}

// ListHandler returns the caller's cart
// @Summary Get cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{items=[]models.CartItem,subtotal=int64,count=int}
// @Router /cart [get]
func (s *CartService) ListHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	items, subtotal, err := s.List(r.Context(), accountID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch cart", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"items":    items,
		"subtotal": subtotal,
		"count":    len(items),
	})
}

// AddHandler puts an item into the caller's cart
// @Summary Add to cart
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{itemId=string} true "Item reference"
// @Success 201 {object} models.CartItem
// @Failure 422 {object} services.ErrorResponse
// @Router /cart/items [post]
func (s *CartService) AddHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ItemID string `json:"itemId" validate:"required,max=64"`
	}

	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	item, err := s.Add(r.Context(), accountID, req.ItemID)
	if err != nil {
		SendCoreError(w, err)
		return
	}

	SendJSON(w, http.StatusCreated, item)
}

// RemoveHandler removes an item from the caller's cart
// @Summary Remove from cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Param itemId path string true "Item ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /cart/items/{itemId} [delete]
func (s *CartService) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	itemID := chi.URLParam(r, "itemId")
	if err := s.Remove(r.Context(), accountID, itemID); err != nil {
		SendCoreError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"success": true})
}
