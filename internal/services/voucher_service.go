package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/learnhub/backend/internal/models"
	"github.com/lib/pq"
)

// VoucherService evaluates discount codes against a cart subtotal and,
// separately, redeems them at checkout. Validation never consumes usage;
// only the guarded redemption update inside the checkout transaction
// moves used_count.
type VoucherService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewVoucherService(db *sql.DB) *VoucherService {
	return &VoucherService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// Validate case-normalizes the code and evaluates the rules in order:
// existence, active flag, expiry, usage limit, minimum purchase. The
// first failing rule is returned. On success it computes the discount
// without mutating anything.
func (s *VoucherService) Validate(ctx context.Context, code string, subtotal int64) (int64, *models.Voucher, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return 0, nil, validationErrorf("voucher code is required")
	}

	v, err := s.fetch(ctx, normalized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ruleViolation(RuleVoucherInvalid, "voucher code not found")
		}
		return 0, nil, storageErr("voucher lookup", err)
	}

	if !v.Active {
		return 0, nil, ruleViolation(RuleVoucherInvalid, "voucher is no longer active")
	}
	if time.Now().After(v.ExpiresAt) {
		return 0, nil, ruleViolation(RuleVoucherExpired, "voucher has expired")
	}
	if v.UsedCount >= v.UsageLimit {
		return 0, nil, ruleViolation(RuleVoucherExhausted, "voucher usage limit reached")
	}
	if subtotal < v.MinPurchase {
		return 0, nil, ruleViolation(RuleVoucherMinimum, "cart subtotal is below the voucher minimum of %d tokens", v.MinPurchase)
	}

	return computeDiscount(v, subtotal), v, nil
}

// computeDiscount applies the voucher's rule to the subtotal. Fixed
// discounts are clamped to the subtotal so a total can never go negative.
func computeDiscount(v *models.Voucher, subtotal int64) int64 {
	switch v.Kind {
	case models.DiscountPercentage:
		discount := subtotal * v.Value / 100
		if v.MaxDiscount != nil && discount > *v.MaxDiscount {
			discount = *v.MaxDiscount
		}
		return discount
	case models.DiscountFixed:
		if v.Value > subtotal {
			return subtotal
		}
		return v.Value
	case models.DiscountFree:
		return subtotal
	default:
		return 0
	}
}

// RedeemTx consumes one unit of the voucher's usage limit inside the
// checkout transaction. The WHERE guard makes the increment atomic:
// under concurrent redemptions only usage_limit of them can match, the
// rest see zero rows affected.
func (s *VoucherService) RedeemTx(tx *sql.Tx, code string) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	result, err := tx.Exec(`
		UPDATE vouchers
		SET used_count = used_count + 1
		WHERE code = $1 AND active = true AND used_count < usage_limit`,
		normalized)
	if err != nil {
		return storageErr("voucher redeem", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("voucher redeem", err)
	}
	if rowsAffected == 0 {
		return ruleViolation(RuleVoucherExhausted, "voucher usage limit reached")
	}

	return nil
}

// Create stores a new voucher. Administrative action.
func (s *VoucherService) Create(ctx context.Context, v *models.Voucher) error {
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))

	switch v.Kind {
	case models.DiscountPercentage, models.DiscountFixed, models.DiscountFree:
	default:
		return validationErrorf("unknown discount kind %q", v.Kind)
	}
	if v.Kind != models.DiscountPercentage && v.MaxDiscount != nil {
		return validationErrorf("max discount only applies to percentage vouchers")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vouchers (code, kind, value, min_purchase, max_discount, scope, expires_at, usage_limit, used_count, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, true, NOW())
		RETURNING id, created_at`,
		v.Code, v.Kind, v.Value, v.MinPurchase, v.MaxDiscount, v.Scope, v.ExpiresAt, v.UsageLimit,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ruleViolation(RuleDuplicateItem, "voucher code %s already exists", v.Code)
		}
		return storageErr("voucher insert", err)
	}

	v.UsedCount = 0
	v.Active = true
	return nil
}

// Deactivate flips a voucher off. It stays in the table for order history.
func (s *VoucherService) Deactivate(ctx context.Context, code string) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	result, err := s.db.ExecContext(ctx, `UPDATE vouchers SET active = false WHERE code = $1`, normalized)
	if err != nil {
		return storageErr("voucher update", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("voucher update", err)
	}
	if rowsAffected == 0 {
		return ruleViolation(RuleNotFound, "voucher code not found")
	}
	return nil
}

// List returns all vouchers, newest first. Administrative action.
func (s *VoucherService) List(ctx context.Context) ([]models.Voucher, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, kind, value, min_purchase, max_discount, scope, expires_at, usage_limit, used_count, active, created_at
		FROM vouchers
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, storageErr("voucher query", err)
	}
	defer rows.Close()

	vouchers := []models.Voucher{}
	for rows.Next() {
		var v models.Voucher
		if err := rows.Scan(&v.ID, &v.Code, &v.Kind, &v.Value, &v.MinPurchase, &v.MaxDiscount,
			&v.Scope, &v.ExpiresAt, &v.UsageLimit, &v.UsedCount, &v.Active, &v.CreatedAt); err != nil {
			return nil, storageErr("voucher scan", err)
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("voucher rows", err)
	}

	return vouchers, nil
}

func (s *VoucherService) fetch(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, kind, value, min_purchase, max_discount, scope, expires_at, usage_limit, used_count, active, created_at
		FROM vouchers
		WHERE code = $1`, code,
	).Scan(&v.ID, &v.Code, &v.Kind, &v.Value, &v.MinPurchase, &v.MaxDiscount,
		&v.Scope, &v.ExpiresAt, &v.UsageLimit, &v.UsedCount, &v.Active, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ValidateHandler previews a voucher against a subtotal
// @Summary Validate a voucher code
// @Description Evaluates a voucher against the given subtotal without consuming usage
// @Tags vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string,subtotal=int64} true "Validation request"
// @Success 200 {object} object{valid=bool,discount=int64}
// @Failure 422 {object} services.ErrorResponse
// @Router /vouchers/validate [post]
func (s *VoucherService) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code" validate:"required,max=40"`
		Subtotal int64  `json:"subtotal" validate:"gte=0"`
	}

	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	discount, voucher, err := s.Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		var bv *BusinessRuleViolation
		if errors.As(err, &bv) {
			SendJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"valid": false,
				"error": bv.Message,
				"rule":  bv.Rule,
			})
			return
		}
		log.Printf("[VOUCHER] Validation failed for %s: %v", req.Code, err)
		SendCoreError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"discount": discount,
		"voucher": map[string]any{
			"code": voucher.Code,
			"kind": voucher.Kind,
		},
	})
}

// CreateHandler stores a new voucher
// @Summary Create a voucher (admin)
// @Tags vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param voucher body object{code=string,kind=string,value=int64,minPurchase=int64,maxDiscount=int64,scope=string,expiresAt=string,usageLimit=int} true "Voucher"
// @Success 201 {object} models.Voucher
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/vouchers [post]
func (s *VoucherService) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string    `json:"code" validate:"required,min=3,max=40"`
		Kind        string    `json:"kind" validate:"required,oneof=percentage fixed free"`
		Value       int64     `json:"value" validate:"gte=0"`
		MinPurchase int64     `json:"minPurchase" validate:"gte=0"`
		MaxDiscount *int64    `json:"maxDiscount"`
		Scope       string    `json:"scope" validate:"max=40"`
		ExpiresAt   time.Time `json:"expiresAt" validate:"required"`
		UsageLimit  int       `json:"usageLimit" validate:"required,gt=0"`
	}

	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	voucher := &models.Voucher{
		Code:        req.Code,
		Kind:        req.Kind,
		Value:       req.Value,
		MinPurchase: req.MinPurchase,
		MaxDiscount: req.MaxDiscount,
		Scope:       req.Scope,
		ExpiresAt:   req.ExpiresAt,
		UsageLimit:  req.UsageLimit,
	}

	if err := s.Create(r.Context(), voucher); err != nil {
		SendCoreError(w, err)
		return
	}

	SendJSON(w, http.StatusCreated, voucher)
}

// DeactivateHandler turns a voucher off
// @Summary Deactivate a voucher (admin)
// @Tags vouchers
// @Produce json
// @Security BearerAuth
// @Param code path string true "Voucher code"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/vouchers/{code}/deactivate [put]
func (s *VoucherService) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.Deactivate(r.Context(), code); err != nil {
		SendCoreError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListHandler lists all vouchers
// @Summary List vouchers (admin)
// @Tags vouchers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{vouchers=[]models.Voucher,count=int}
// @Router /admin/vouchers [get]
func (s *VoucherService) ListHandler(w http.ResponseWriter, r *http.Request) {
	vouchers, err := s.List(r.Context())
	if err != nil {
		SendErrorResponse(w, "Failed to fetch vouchers", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"vouchers": vouchers,
		"count":    len(vouchers),
	})
}
