package services

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/embakulas/expense-tracker/internal/middleware"
	"github.com/embakulas/expense-tracker/internal/models"
)

// ImportService loads spreadsheet exports into the transaction store. Rows
// are appended unreconciled; a reconcile-all pass posts the balances.
type ImportService struct {
	db *sql.DB
}

func NewImportService(db *sql.DB) *ImportService {
	return &ImportService{db: db}
}

// ImportResult reports the outcome of one CSV upload.
type ImportResult struct {
	BatchID  string   `json:"batch_id"`
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportTransactions loads a CSV of transactions
// @Summary Bulk import transactions
// @Description Upload a CSV export; rows are appended unreconciled
// @Tags import
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} ImportResult
// @Failure 400 {object} ErrorResponse
// @Router /import/transactions [post]
func (is *ImportService) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		SendErrorResponse(w, "Invalid multipart form", http.StatusBadRequest, nil)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		SendErrorResponse(w, "Missing file", http.StatusBadRequest, nil)
		return
	}
	defer file.Close()

	rows, parseErrs, err := parseTransactionCSV(file, userID)
	if err != nil {
		SendErrorResponse(w, fmt.Sprintf("Failed to parse CSV: %v", err), http.StatusBadRequest, nil)
		return
	}
	if len(rows) == 0 {
		SendErrorResponse(w, "No importable rows found", http.StatusBadRequest, nil)
		return
	}

	dbTx, err := is.db.Begin()
	if err != nil {
		log.Printf("[IMPORT] Failed to begin import for user %d: %v", userID, err)
		SendErrorResponse(w, "Import failed", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	for _, txn := range rows {
		if _, err := dbTx.Exec(`INSERT INTO expenses (user_id, date, amount, type, payment_method, used_credit_card, paid_to, category, subcategory, is_splitwise, splitwise_person, description) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			txn.UserID, txn.Date, txn.Amount, txn.Type,
			nullable(txn.PaymentMethod), nullable(txn.UsedCreditCard), nullable(txn.PaidTo),
			nullable(txn.Category), nullable(txn.Subcategory),
			txn.IsSplitwise, nullable(txn.SplitwisePerson), nullable(txn.Description)); err != nil {
			log.Printf("[IMPORT] Insert failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Import failed", http.StatusInternalServerError, nil)
			return
		}
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[IMPORT] Commit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Import failed", http.StatusInternalServerError, nil)
		return
	}

	batchID := uuid.NewString()
	log.Printf("[IMPORT] Batch %s: imported %d transactions for user %d (%d rows rejected)",
		batchID, len(rows), userID, len(parseErrs))

	SendJSON(w, http.StatusOK, ImportResult{
		BatchID:  batchID,
		Imported: len(rows),
		Errors:   parseErrs,
	})
}

// csvColumns maps normalized header names to field positions.
var csvColumns = []string{
	"date", "amount", "type", "payment_method", "used_credit_card", "paid_to",
	"category", "subcategory", "is_splitwise", "splitwise_person", "description",
}

// parseTransactionCSV reads a header row plus data rows. Headers are
// normalized (lowercased, spaces to underscores); unknown columns are
// ignored, missing optional columns default to empty.
func parseTransactionCSV(r io.Reader, userID int) ([]*models.Transaction, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	index := map[string]int{}
	for i, col := range header {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
		index[name] = i
	}
	for _, required := range []string{"date", "amount", "type"} {
		if _, ok := index[required]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []*models.Transaction
	var parseErrs []string
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		date, err := time.Parse("2006-01-02", field(record, "date"))
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("line %d: invalid date %q", line, field(record, "date")))
			continue
		}

		amount, err := decimal.NewFromString(field(record, "amount"))
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("line %d: invalid amount %q", line, field(record, "amount")))
			continue
		}

		txn := &models.Transaction{
			UserID:          userID,
			Date:            date,
			Amount:          amount,
			Type:            strings.ToLower(field(record, "type")),
			PaymentMethod:   field(record, "payment_method"),
			UsedCreditCard:  field(record, "used_credit_card"),
			PaidTo:          field(record, "paid_to"),
			Category:        field(record, "category"),
			Subcategory:     field(record, "subcategory"),
			IsSplitwise:     strings.EqualFold(field(record, "is_splitwise"), "yes"),
			SplitwisePerson: field(record, "splitwise_person"),
			Description:     field(record, "description"),
		}

		if err := ValidateTransaction(txn); err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		rows = append(rows, txn)
	}

	return rows, parseErrs, nil
}
