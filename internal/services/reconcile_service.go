package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/embakulas/expense-tracker/internal/audit"
	"github.com/embakulas/expense-tracker/internal/models"
)

// Balance entity kinds a posting can target.
const (
	EntityChecking   = "checking_account"
	EntityCreditCard = "credit_card"
	EntitySplitwise  = "splitwise_person"
)

// ErrAlreadyReconciled means the transaction's postings were applied before;
// a repeat reconcile is a no-op, never a double-apply.
var ErrAlreadyReconciled = errors.New("transaction already reconciled")

// ErrValidation wraps per-type required-field failures.
var ErrValidation = errors.New("validation error")

// Posting is a single balance mutation derived from one transaction: the
// target entity kind, its name, and the signed delta to apply. Checking
// deltas hit current_balance, credit card deltas hit used_limit, splitwise
// deltas hit net_balance.
type Posting struct {
	Entity string
	Name   string
	Delta  decimal.Decimal
}

// ReconcileService translates transactions into balance mutations. Posting
// rules are keyed by transaction type; a leg that names a missing entity is
// skipped (logged and counted), it never fails the transaction.
type ReconcileService struct {
	db          *sql.DB
	balances    *BalanceService
	audit       *audit.Logger
	skippedLegs uint64
}

func NewReconcileService(db *sql.DB, balances *BalanceService) *ReconcileService {
	return &ReconcileService{
		db:       db,
		balances: balances,
		audit:    audit.NewLogger(),
	}
}

// ValidateTransaction checks the per-type required-field rules that the
// posting table assumes.
func ValidateTransaction(txn *models.Transaction) error {
	switch txn.Type {
	case models.TypeExpense, models.TypeIncome, models.TypeTransfer, models.TypeDebtPayment:
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, txn.Type)
	}
	if txn.IsSplitwise && txn.SplitwisePerson == "" {
		return fmt.Errorf("%w: splitwise transaction requires a splitwise_person", ErrValidation)
	}
	return nil
}

// BuildPostings evaluates the posting rules for one transaction. cardExists
// resolves the debt_payment ambiguity where paid_to may name either a
// checking account or a credit card. The returned legs are applied together;
// they are not mutually exclusive except where the rules say so.
func BuildPostings(txn *models.Transaction, cardExists func(name string) (bool, error)) ([]Posting, error) {
	amount := txn.Amount
	abs := amount.Abs()
	var postings []Posting

	switch txn.Type {
	case models.TypeIncome:
		if txn.PaymentMethod != "" {
			postings = append(postings, Posting{EntityChecking, txn.PaymentMethod, amount})
		}
		if txn.IsSplitwise && txn.SplitwisePerson != "" {
			// they paid me back, so they owe less
			postings = append(postings, Posting{EntitySplitwise, txn.SplitwisePerson, amount})
		}

	case models.TypeExpense:
		if txn.IsSplitwise && txn.SplitwisePerson != "" {
			delta := abs
			if amount.IsPositive() {
				delta = abs.Neg()
			}
			postings = append(postings, Posting{EntitySplitwise, txn.SplitwisePerson, delta})
		} else if txn.UsedCreditCard != "" {
			postings = append(postings, Posting{EntityCreditCard, txn.UsedCreditCard, abs})
		} else if txn.PaymentMethod != "" {
			postings = append(postings, Posting{EntityChecking, txn.PaymentMethod, abs.Neg()})
		}

	case models.TypeTransfer:
		// transfer + splitwise is an invalid combination and posts nothing
		if txn.IsSplitwise {
			return nil, nil
		}
		if txn.PaymentMethod != "" {
			postings = append(postings, Posting{EntityChecking, txn.PaymentMethod, abs.Neg()})
		}
		if txn.PaidTo != "" {
			postings = append(postings, Posting{EntityChecking, txn.PaidTo, abs})
		}

	case models.TypeDebtPayment:
		if txn.PaymentMethod != "" {
			postings = append(postings, Posting{EntityChecking, txn.PaymentMethod, abs.Neg()})
		}
		if txn.PaidTo != "" {
			isCard, err := cardExists(txn.PaidTo)
			if err != nil {
				return nil, err
			}
			if isCard {
				postings = append(postings, Posting{EntityCreditCard, txn.PaidTo, abs.Neg()})
			}
		}
		if txn.IsSplitwise && txn.SplitwisePerson != "" {
			postings = append(postings, Posting{EntitySplitwise, txn.SplitwisePerson, abs.Neg()})
		}
	}

	return postings, nil
}

// Reconcile applies one transaction's postings in its own storage transaction.
func (rs *ReconcileService) Reconcile(transactionID int) error {
	dbTx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reconciliation: %w", err)
	}
	defer dbTx.Rollback()

	txn, err := rs.fetchTransactionTx(dbTx, transactionID)
	if err != nil {
		return err
	}

	if err := rs.ReconcileTx(dbTx, txn); err != nil {
		return err
	}

	return dbTx.Commit()
}

// ReconcileTx claims the transaction and applies its postings inside the
// caller's storage transaction. Returns ErrAlreadyReconciled when the row
// was claimed before; the caller decides whether that is an error.
func (rs *ReconcileService) ReconcileTx(dbTx *sql.Tx, txn *models.Transaction) error {
	if err := ValidateTransaction(txn); err != nil {
		return err
	}

	if err := rs.claimTx(dbTx, txn.ID); err != nil {
		return err
	}

	postings, err := BuildPostings(txn, func(name string) (bool, error) {
		return rs.balances.CreditCardExists(dbTx, txn.UserID, name)
	})
	if err != nil {
		rs.audit.LogError(txn.ID, txn.UserID, err)
		return fmt.Errorf("failed to build postings for transaction %d: %w", txn.ID, err)
	}

	for _, p := range postings {
		if err := rs.applyPostingTx(dbTx, txn, p); err != nil {
			rs.audit.LogError(txn.ID, txn.UserID, err)
			return err
		}
	}

	return nil
}

// ReconcileAll replays every unreconciled transaction for the owner in
// ascending id order. Used for backfill after bulk import, not the normal
// write path. Each transaction remains its own atomic unit.
func (rs *ReconcileService) ReconcileAll(userID int) (int, error) {
	rows, err := rs.db.Query(`SELECT id FROM expenses WHERE user_id = $1 AND reconciled_at IS NULL ORDER BY id ASC`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list unreconciled transactions: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	reconciled := 0
	for _, id := range ids {
		if err := rs.Reconcile(id); err != nil {
			if errors.Is(err, ErrAlreadyReconciled) {
				continue
			}
			return reconciled, fmt.Errorf("failed to reconcile transaction %d: %w", id, err)
		}
		reconciled++
	}

	log.Printf("[RECONCILE] Replayed %d transactions for user %d", reconciled, userID)
	return reconciled, nil
}

// SkippedLegs reports how many posting legs were dropped because their named
// entity was missing. Reference misses are silent by policy but counted for
// operability.
func (rs *ReconcileService) SkippedLegs() uint64 {
	return atomic.LoadUint64(&rs.skippedLegs)
}

// claimTx marks the transaction reconciled. The check-and-set is a single
// statement so a concurrent or repeated reconcile of the same row cannot
// double-apply its postings.
func (rs *ReconcileService) claimTx(dbTx *sql.Tx, transactionID int) error {
	res, err := dbTx.Exec(`UPDATE expenses SET reconciled_at = NOW() WHERE id = $1 AND reconciled_at IS NULL`, transactionID)
	if err != nil {
		return fmt.Errorf("failed to claim transaction %d: %w", transactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyReconciled
	}
	return nil
}

func (rs *ReconcileService) applyPostingTx(dbTx *sql.Tx, txn *models.Transaction, p Posting) error {
	var applied bool
	var err error

	switch p.Entity {
	case EntityChecking:
		applied, err = rs.balances.ApplyCheckingDelta(dbTx, txn.UserID, p.Name, p.Delta)
	case EntityCreditCard:
		applied, err = rs.balances.ApplyCreditCardDelta(dbTx, txn.UserID, p.Name, p.Delta)
	case EntitySplitwise:
		applied, err = rs.balances.ApplySplitwiseDelta(dbTx, txn.UserID, p.Name, p.Delta)
	default:
		return fmt.Errorf("unknown posting entity %q", p.Entity)
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s posting for %q: %w", p.Entity, p.Name, err)
	}

	if !applied {
		// missing entity: drop the leg, keep the transaction
		atomic.AddUint64(&rs.skippedLegs, 1)
		rs.audit.LogSkippedLeg(txn.ID, txn.UserID, p.Entity, p.Name)
		log.Printf("[RECONCILE] Skipped %s posting for %q on transaction %d: no such entity", p.Entity, p.Name, txn.ID)
		return nil
	}

	rs.audit.LogPosting(txn.ID, txn.UserID, p.Entity, p.Name, p.Delta.String())
	return nil
}

func (rs *ReconcileService) fetchTransactionTx(dbTx *sql.Tx, transactionID int) (*models.Transaction, error) {
	var txn models.Transaction
	var paymentMethod, usedCreditCard, paidTo, category, subcategory, person, description sql.NullString
	err := dbTx.QueryRow(`SELECT id, user_id, date, amount, type, payment_method, used_credit_card, paid_to, category, subcategory, is_splitwise, splitwise_person, description, reconciled_at, created_at FROM expenses WHERE id = $1`,
		transactionID).Scan(&txn.ID, &txn.UserID, &txn.Date, &txn.Amount, &txn.Type,
		&paymentMethod, &usedCreditCard, &paidTo, &category, &subcategory,
		&txn.IsSplitwise, &person, &description, &txn.ReconciledAt, &txn.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %d: %w", transactionID, err)
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
