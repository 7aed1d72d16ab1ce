package services

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/learnhub/backend/internal/audit"
	"github.com/learnhub/backend/internal/models"
)

// LedgerService owns the append-only token ledger. Balances are derived
// by summing entries on every read; there is no stored balance column
// that could drift from the history.
type LedgerService struct {
	db    *sql.DB
	audit *audit.AuditLogger
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:    db,
		audit: audit.NewAuditLogger(),
	}
}

// RecordEntry appends one immutable entry. The ledger itself does not
// police the resulting balance sign; callers on purchase paths check
// funds before debiting.
func (s *LedgerService) RecordEntry(ctx context.Context, accountID string, amount int64, kind, description, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, amount, kind, description, order_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())`,
		accountID, amount, kind, description, orderID)
	if err != nil {
		return storageErr("ledger insert", err)
	}
	return nil
}

// RecordEntryTx is RecordEntry inside a caller-owned transaction, so the
// checkout debit commits or rolls back with the rest of the purchase.
func (s *LedgerService) RecordEntryTx(tx *sql.Tx, accountID string, amount int64, kind, description, orderID string) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (account_id, amount, kind, description, order_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())`,
		accountID, amount, kind, description, orderID)
	if err != nil {
		return storageErr("ledger insert", err)
	}
	return nil
}

// RecordDebitTx appends a debit only if the account's derived balance
// covers it. The INSERT ... SELECT guard recomputes the sum inside the
// transaction, so two checkouts racing on the same account cannot both
// spend the same tokens.
func (s *LedgerService) RecordDebitTx(tx *sql.Tx, accountID string, amount int64, kind, description, orderID string) error {
	if amount > 0 {
		return validationErrorf("debit amount must not be positive")
	}
	result, err := tx.Exec(`
		INSERT INTO ledger_entries (account_id, amount, kind, description, order_id, created_at)
		SELECT $1, $2, $3, $4, NULLIF($5, ''), NOW()
		WHERE (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1) >= -$2`,
		accountID, amount, kind, description, orderID)
	if err != nil {
		return storageErr("ledger debit", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("ledger debit", err)
	}
	if rowsAffected == 0 {
		return ruleViolation(RuleInsufficientFunds,
			"insufficient balance for a debit of %d tokens", -amount)
	}
	return nil
}

// GetBalance returns the sum of the account's entries at a single point
// in time. A failed read surfaces as a StorageError; callers approving a
// purchase must never substitute zero.
func (s *LedgerService) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
		accountID).Scan(&balance)
	if err != nil {
		return 0, storageErr("balance read", err)
	}
	return balance, nil
}

// ListEntries returns the most recent entries for an account.
func (s *LedgerService) ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, amount, kind, description, COALESCE(order_id, ''), created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, storageErr("ledger query", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &e.Description, &e.OrderID, &e.CreatedAt); err != nil {
			return nil, storageErr("ledger scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ledger rows", err)
	}

	return entries, nil
}

// TopUp credits an account. Administrative action.
func (s *LedgerService) TopUp(ctx context.Context, accountID string, amount int64, description string) error {
	if amount <= 0 {
		return validationErrorf("top-up amount must be positive")
	}
	if description == "" {
		description = "Administrative top-up"
	}
	if err := s.RecordEntry(ctx, accountID, amount, models.EntryKindTopUp, description, ""); err != nil {
		return err
	}
	s.audit.LogTopUp(accountID, amount, description)
	return nil
}

// GetBalanceHandler returns the caller's derived balance
// @Summary Get wallet balance
// @Description Returns the account balance derived from the token ledger
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{accountId=string,balance=int64}
// @Failure 500 {object} services.ErrorResponse
// @Router /wallet/balance [get]
func (s *LedgerService) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := s.GetBalance(r.Context(), accountID)
	if err != nil {
		log.Printf("[LEDGER] Balance read failed for %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to read balance", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"accountId": accountID,
		"balance":   balance,
	})
}

// ListEntriesHandler returns the caller's recent ledger entries
// @Summary List ledger entries
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries to return (default: 50, max: 200)"
// @Success 200 {object} object{entries=[]models.LedgerEntry,count=int}
// @Failure 500 {object} services.ErrorResponse
// @Router /wallet/entries [get]
func (s *LedgerService) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	entries, err := s.ListEntries(r.Context(), accountID, limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch entries", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// TopUpHandler credits an account with tokens
// @Summary Top up an account (admin)
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{accountId=string,amount=int64,description=string} true "Top-up request"
// @Success 201 {object} object{success=bool,balance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/wallet/top-up [post]
func (s *LedgerService) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string `json:"accountId" validate:"required"`
		Amount      int64  `json:"amount" validate:"required,gt=0"`
		Description string `json:"description" validate:"max=200"`
	}

	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := NewValidationHelper().ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := s.TopUp(r.Context(), req.AccountID, req.Amount, req.Description); err != nil {
		SendCoreError(w, err)
		return
	}

	balance, err := s.GetBalance(r.Context(), req.AccountID)
	if err != nil {
		// Credit landed but readback failed. Report success without a balance.
		SendJSON(w, http.StatusCreated, map[string]any{"success": true})
		return
	}

	SendJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"balance": balance,
	})
}
