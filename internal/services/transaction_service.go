package services

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/embakulas/expense-tracker/internal/middleware"
	"github.com/embakulas/expense-tracker/internal/models"
)

// TransactionService owns the write-once transaction store and invokes the
// reconciliation engine. Appending a transaction and applying its postings is
// one atomic unit: either everything commits or nothing does.
type TransactionService struct {
	db         *sql.DB
	reconciler *ReconcileService
	validator  *ValidationHelper
}

func NewTransactionService(db *sql.DB, reconciler *ReconcileService) *TransactionService {
	return &TransactionService{
		db:         db,
		reconciler: reconciler,
		validator:  NewValidationHelper(),
	}
}

// CreateTransactionRequest is the input-form payload.
type CreateTransactionRequest struct {
	Date            string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount          decimal.Decimal `json:"amount"`
	Type            string          `json:"type" validate:"required,oneof=expense income transfer debt_payment"`
	PaymentMethod   string          `json:"payment_method"`
	UsedCreditCard  string          `json:"used_credit_card"`
	PaidTo          string          `json:"paid_to"`
	Category        string          `json:"category"`
	Subcategory     string          `json:"subcategory"`
	IsSplitwise     bool            `json:"is_splitwise"`
	SplitwisePerson string          `json:"splitwise_person"`
	Description     string          `json:"description"`
}

// CreateTransaction appends a transaction and reconciles balances
// @Summary Create a new transaction
// @Description Record a transaction and apply its balance postings atomically
// @Tags transactions
// @Accept json
// @Produce json
// @Param transaction body CreateTransactionRequest true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CreateTransactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Amount.IsNegative() {
		SendErrorResponse(w, "Amount must not be negative", http.StatusBadRequest, nil)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		SendErrorResponse(w, "Invalid date", http.StatusBadRequest, nil)
		return
	}

	txn := &models.Transaction{
		UserID:          userID,
		Date:            date,
		Amount:          req.Amount,
		Type:            req.Type,
		PaymentMethod:   req.PaymentMethod,
		UsedCreditCard:  req.UsedCreditCard,
		PaidTo:          req.PaidTo,
		Category:        req.Category,
		Subcategory:     req.Subcategory,
		IsSplitwise:     req.IsSplitwise,
		SplitwisePerson: req.SplitwisePerson,
		Description:     req.Description,
	}

	if err := ValidateTransaction(txn); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to record transaction", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	if err := ts.appendTx(dbTx, txn); err != nil {
		log.Printf("[TRANSACTION] Failed to append transaction for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to record transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := ts.reconciler.ReconcileTx(dbTx, txn); err != nil {
		log.Printf("[TRANSACTION] Failed to reconcile transaction %d: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to update balances", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Failed to commit transaction %d: %v", txn.ID, err)
		SendErrorResponse(w, "Failed to record transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Recorded transaction %d (%s %s) for user %d", txn.ID, txn.Type, txn.Amount, userID)
	SendJSON(w, http.StatusCreated, txn)
}

// appendTx inserts the write-once row and fills in the assigned id.
func (ts *TransactionService) appendTx(dbTx *sql.Tx, txn *models.Transaction) error {
	return dbTx.QueryRow(`INSERT INTO expenses (user_id, date, amount, type, payment_method, used_credit_card, paid_to, category, subcategory, is_splitwise, splitwise_person, description) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id, created_at`,
		txn.UserID, txn.Date, txn.Amount, txn.Type,
		nullable(txn.PaymentMethod), nullable(txn.UsedCreditCard), nullable(txn.PaidTo),
		nullable(txn.Category), nullable(txn.Subcategory),
		txn.IsSplitwise, nullable(txn.SplitwisePerson), nullable(txn.Description),
	).Scan(&txn.ID, &txn.CreatedAt)
}

// GetTransaction retrieves a specific transaction
// @Summary Get transaction by ID
// @Tags transactions
// @Produce json
// @Param txId path int true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{txId} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID, err := strconv.Atoi(chi.URLParam(r, "txId"))
	if err != nil {
		SendErrorResponse(w, "Invalid transaction ID", http.StatusBadRequest, nil)
		return
	}

	txn, err := ts.fetchTransaction(userID, txID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, txn)
}

// ListTransactions retrieves transactions with optional filters
// @Summary List transactions
// @Description List the owner's transactions in ascending id order
// @Tags transactions
// @Produce json
// @Param type query string false "Filter by transaction type"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var filter models.ListFilter
	filter.Type = r.URL.Query().Get("type")
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			SendErrorResponse(w, "Invalid from date", http.StatusBadRequest, nil)
			return
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			SendErrorResponse(w, "Invalid to date", http.StatusBadRequest, nil)
			return
		}
		filter.To = t
	}

	transactions, err := ts.fetchTransactions(userID, filter)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to list transactions for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetRecentTransactions retrieves the newest transactions for the dashboard
// @Summary Get recent transactions
// @Tags transactions
// @Produce json
// @Param limit query int false "Number of transactions to return (default: 5, max: 100)"
// @Success 200 {array} models.Transaction
// @Router /transactions/recent [get]
func (ts *TransactionService) GetRecentTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Limit int `validate:"omitempty,min=1,max=100"`
	}
	req.Limit = 5

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	rows, err := ts.db.Query(`SELECT `+transactionColumns+` FROM expenses WHERE user_id = $1 ORDER BY id DESC LIMIT $2`, userID, req.Limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch recent transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions, err := scanTransactions(rows)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch recent transactions", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, transactions)
}

// ReconcileAll replays unreconciled transactions for the owner
// @Summary Reconcile all pending transactions
// @Description Backfill balances after a bulk import
// @Tags transactions
// @Produce json
// @Success 200 {object} map[string]int
// @Router /transactions/reconcile-all [post]
func (ts *TransactionService) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	reconciled, err := ts.reconciler.ReconcileAll(userID)
	if err != nil {
		log.Printf("[TRANSACTION] Bulk reconciliation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Reconciliation failed", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]int{"reconciled": reconciled})
}

const transactionColumns = `id, user_id, date, amount, type, payment_method, used_credit_card, paid_to, category, subcategory, is_splitwise, splitwise_person, description, reconciled_at, created_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*models.Transaction, error) {
	var txn models.Transaction
	var paymentMethod, usedCreditCard, paidTo, category, subcategory, person, description sql.NullString

	if err := s.Scan(&txn.ID, &txn.UserID, &txn.Date, &txn.Amount, &txn.Type,
		&paymentMethod, &usedCreditCard, &paidTo, &category, &subcategory,
		&txn.IsSplitwise, &person, &description, &txn.ReconciledAt, &txn.CreatedAt); err != nil {
		return nil, err
	}

	txn.PaymentMethod = paymentMethod.String
	txn.UsedCreditCard = usedCreditCard.String
	txn.PaidTo = paidTo.String
	txn.Category = category.String
	txn.Subcategory = subcategory.String
	txn.SplitwisePerson = person.String
	txn.Description = description.String
	return &txn, nil
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	transactions := []*models.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

func (ts *TransactionService) fetchTransaction(userID, txID int) (*models.Transaction, error) {
	txn, err := scanTransaction(ts.db.QueryRow(`SELECT `+transactionColumns+` FROM expenses WHERE id = $1 AND user_id = $2`, txID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (ts *TransactionService) fetchTransactions(userID int, filter models.ListFilter) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM expenses WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if filter.Type != "" {
		query += ` AND type = $` + strconv.Itoa(argIdx)
		args = append(args, filter.Type)
		argIdx++
	}
	if !filter.From.IsZero() {
		query += ` AND date >= $` + strconv.Itoa(argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += ` AND date <= $` + strconv.Itoa(argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	query += ` ORDER BY id ASC`

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
