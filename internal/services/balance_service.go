package services

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/embakulas/expense-tracker/internal/middleware"
	"github.com/embakulas/expense-tracker/internal/models"
)

// ErrNotFound is returned when a named balance entity does not exist for the owner.
var ErrNotFound = errors.New("not found")

// execer is satisfied by both *sql.DB and *sql.Tx, so delta application can run
// standalone or inside the reconciliation unit of work.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// BalanceService owns the three balance ledgers: checking accounts, credit
// cards, and splitwise people. All rows are scoped by (user_id, name).
type BalanceService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewBalanceService(db *sql.DB) *BalanceService {
	return &BalanceService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// ---- store operations ----

func (bs *BalanceService) GetCheckingAccount(userID int, name string) (*models.CheckingAccount, error) {
	var acct models.CheckingAccount
	err := bs.db.QueryRow(`SELECT id, user_id, name, current_balance FROM checking_accounts WHERE user_id = $1 AND name = $2`,
		userID, name).Scan(&acct.ID, &acct.UserID, &acct.Name, &acct.CurrentBalance)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (bs *BalanceService) GetCreditCard(userID int, name string) (*models.CreditCard, error) {
	var card models.CreditCard
	err := bs.db.QueryRow(`SELECT id, user_id, name, total_limit, used_limit FROM credit_cards WHERE user_id = $1 AND name = $2`,
		userID, name).Scan(&card.ID, &card.UserID, &card.Name, &card.TotalLimit, &card.UsedLimit)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (bs *BalanceService) GetSplitwisePerson(userID int, name string) (*models.SplitwisePerson, error) {
	var person models.SplitwisePerson
	err := bs.db.QueryRow(`SELECT id, user_id, name, net_balance, last_updated FROM splitwise_people WHERE user_id = $1 AND name = $2`,
		userID, name).Scan(&person.ID, &person.UserID, &person.Name, &person.NetBalance, &person.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (bs *BalanceService) CreateCheckingAccount(userID int, name string, initialBalance decimal.Decimal) error {
	_, err := bs.db.Exec(`INSERT INTO checking_accounts (user_id, name, current_balance) VALUES ($1, $2, $3)`,
		userID, name, initialBalance)
	return err
}

func (bs *BalanceService) CreateCreditCard(userID int, name string, totalLimit decimal.Decimal) error {
	_, err := bs.db.Exec(`INSERT INTO credit_cards (user_id, name, total_limit, used_limit) VALUES ($1, $2, $3, 0)`,
		userID, name, totalLimit)
	return err
}

func (bs *BalanceService) CreateSplitwisePerson(userID int, name string) error {
	_, err := bs.db.Exec(`INSERT INTO splitwise_people (user_id, name, net_balance, last_updated) VALUES ($1, $2, 0, NOW())`,
		userID, name)
	return err
}

// ApplyCheckingDelta adds delta to current_balance as one atomic increment.
// Returns false when no account with that name exists for the owner.
func (bs *BalanceService) ApplyCheckingDelta(q execer, userID int, name string, delta decimal.Decimal) (bool, error) {
	res, err := q.Exec(`UPDATE checking_accounts SET current_balance = current_balance + $1 WHERE user_id = $2 AND name = $3`,
		delta, userID, name)
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

// ApplyCreditCardDelta adds delta to used_limit as one atomic increment.
// available_limit is never stored; it is recomputed from total_limit - used_limit.
func (bs *BalanceService) ApplyCreditCardDelta(q execer, userID int, name string, delta decimal.Decimal) (bool, error) {
	res, err := q.Exec(`UPDATE credit_cards SET used_limit = used_limit + $1 WHERE user_id = $2 AND name = $3`,
		delta, userID, name)
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

// ApplySplitwiseDelta adds delta to net_balance and stamps last_updated.
func (bs *BalanceService) ApplySplitwiseDelta(q execer, userID int, name string, delta decimal.Decimal) (bool, error) {
	res, err := q.Exec(`UPDATE splitwise_people SET net_balance = net_balance + $1, last_updated = NOW() WHERE user_id = $2 AND name = $3`,
		delta, userID, name)
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

// CreditCardExists reports whether the owner has a credit card with this name.
func (bs *BalanceService) CreditCardExists(q querier, userID int, name string) (bool, error) {
	var exists bool
	err := q.QueryRow(`SELECT EXISTS(SELECT 1 FROM credit_cards WHERE user_id = $1 AND name = $2)`,
		userID, name).Scan(&exists)
	return exists, err
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- HTTP handlers ----

// BalancesResponse is the dashboard view over all three ledgers.
type BalancesResponse struct {
	CheckingAccounts []models.CheckingAccount `json:"checking_accounts"`
	CreditCards      []CreditCardView         `json:"credit_cards"`
	SplitwisePeople  []models.SplitwisePerson `json:"splitwise_people"`
}

// CreditCardView includes the derived available limit.
type CreditCardView struct {
	models.CreditCard
	AvailableLimit decimal.Decimal `json:"available_limit"`
}

// GetBalances returns every balance entity for the authenticated owner.
// @Summary Dashboard balances
// @Tags balances
// @Produce json
// @Success 200 {object} BalancesResponse
// @Router /balances [get]
func (bs *BalanceService) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	resp := BalancesResponse{
		CheckingAccounts: []models.CheckingAccount{},
		CreditCards:      []CreditCardView{},
		SplitwisePeople:  []models.SplitwisePerson{},
	}

	rows, err := bs.db.Query(`SELECT id, user_id, name, current_balance FROM checking_accounts WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		log.Printf("[BALANCES] Failed to fetch checking accounts for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch balances", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var acct models.CheckingAccount
		if err := rows.Scan(&acct.ID, &acct.UserID, &acct.Name, &acct.CurrentBalance); err != nil {
			SendErrorResponse(w, "Failed to fetch balances", http.StatusInternalServerError, nil)
			return
		}
		resp.CheckingAccounts = append(resp.CheckingAccounts, acct)
	}

	cardRows, err := bs.db.Query(`SELECT id, user_id, name, total_limit, used_limit FROM credit_cards WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		log.Printf("[BALANCES] Failed to fetch credit cards for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch balances", http.StatusInternalServerError, nil)
		return
	}
	defer cardRows.Close()
	for cardRows.Next() {
		var card models.CreditCard
		if err := cardRows.Scan(&card.ID, &card.UserID, &card.Name, &card.TotalLimit, &card.UsedLimit); err != nil {
			SendErrorResponse(w, "Failed to fetch balances", http.StatusInternalServerError, nil)
			return
		}
		resp.CreditCards = append(resp.CreditCards, CreditCardView{CreditCard: card, AvailableLimit: card.AvailableLimit()})
	}

	personRows, err := bs.db.Query(`SELECT id, user_id, name, net_balance, last_updated FROM splitwise_people WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		log.Printf("[BALANCES] Failed to fetch splitwise people for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch balances", http.StatusInternalServerError, nil)
		return
	}
	defer personRows.Close()
	for personRows.Next() {
		var person models.SplitwisePerson
		if err := personRows.Scan(&person.ID, &person.UserID, &person.Name, &person.NetBalance, &person.LastUpdated); err != nil {
			SendErrorResponse(w, "Failed to fetch balances", http.StatusInternalServerError, nil)
			return
		}
		resp.SplitwisePeople = append(resp.SplitwisePeople, person)
	}

	SendJSON(w, http.StatusOK, resp)
}

// AddCheckingAccountRequest creates a checking account with an initial balance.
type AddCheckingAccountRequest struct {
	Name           string          `json:"name" validate:"required"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// AddCheckingAccount handles checking account creation
// @Summary Add checking account
// @Tags balances
// @Accept json
// @Produce json
// @Param request body AddCheckingAccountRequest true "Account data"
// @Success 201 {object} models.CheckingAccount
// @Router /accounts/checking [post]
func (bs *BalanceService) AddCheckingAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AddCheckingAccountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := bs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := bs.CreateCheckingAccount(userID, req.Name, req.InitialBalance); err != nil {
		if isUniqueViolation(err) {
			SendErrorResponse(w, "Account already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[BALANCES] Failed to create checking account %q for user %d: %v", req.Name, userID, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	acct, err := bs.GetCheckingAccount(userID, req.Name)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}
	SendJSON(w, http.StatusCreated, acct)
}

// AddCreditCardRequest creates a credit card with used_limit = 0.
type AddCreditCardRequest struct {
	Name       string          `json:"name" validate:"required"`
	TotalLimit decimal.Decimal `json:"total_limit"`
}

// AddCreditCard handles credit card creation
// @Summary Add credit card
// @Tags balances
// @Accept json
// @Produce json
// @Param request body AddCreditCardRequest true "Card data"
// @Success 201 {object} CreditCardView
// @Router /accounts/credit-cards [post]
func (bs *BalanceService) AddCreditCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AddCreditCardRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := bs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.TotalLimit.IsNegative() {
		SendErrorResponse(w, "Total limit must not be negative", http.StatusBadRequest, nil)
		return
	}

	if err := bs.CreateCreditCard(userID, req.Name, req.TotalLimit); err != nil {
		if isUniqueViolation(err) {
			SendErrorResponse(w, "Credit card already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[BALANCES] Failed to create credit card %q for user %d: %v", req.Name, userID, err)
		SendErrorResponse(w, "Failed to create credit card", http.StatusInternalServerError, nil)
		return
	}

	card, err := bs.GetCreditCard(userID, req.Name)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch credit card", http.StatusInternalServerError, nil)
		return
	}
	SendJSON(w, http.StatusCreated, CreditCardView{CreditCard: *card, AvailableLimit: card.AvailableLimit()})
}

// AddSplitwisePersonRequest creates a peer-debt ledger entry with net_balance = 0.
type AddSplitwisePersonRequest struct {
	Name string `json:"name" validate:"required"`
}

// AddSplitwisePerson handles splitwise person creation
// @Summary Add splitwise person
// @Tags balances
// @Accept json
// @Produce json
// @Param request body AddSplitwisePersonRequest true "Person data"
// @Success 201 {object} models.SplitwisePerson
// @Router /splitwise/people [post]
func (bs *BalanceService) AddSplitwisePerson(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AddSplitwisePersonRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := bs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := bs.CreateSplitwisePerson(userID, req.Name); err != nil {
		if isUniqueViolation(err) {
			SendErrorResponse(w, "Person already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[BALANCES] Failed to create splitwise person %q for user %d: %v", req.Name, userID, err)
		SendErrorResponse(w, "Failed to create person", http.StatusInternalServerError, nil)
		return
	}

	person, err := bs.GetSplitwisePerson(userID, req.Name)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch person", http.StatusInternalServerError, nil)
		return
	}
	SendJSON(w, http.StatusCreated, person)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
