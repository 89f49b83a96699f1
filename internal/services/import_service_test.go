package services

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransactionCSV(t *testing.T) {
	t.Run("normalizes headers and splitwise flags", func(t *testing.T) {
		csv := strings.Join([]string{
			"Date,Amount,Type,Payment Method,Is Splitwise,Splitwise Person",
			"2025-06-12,50,expense,,yes,Sam",
			"2025-06-13,200,expense,Chase,no,",
		}, "\n")

		rows, errs, err := parseTransactionCSV(strings.NewReader(csv), 7)
		require.NoError(t, err)
		assert.Empty(t, errs)
		require.Len(t, rows, 2)

		assert.Equal(t, 7, rows[0].UserID)
		assert.True(t, rows[0].IsSplitwise)
		assert.Equal(t, "Sam", rows[0].SplitwisePerson)
		assert.False(t, rows[1].IsSplitwise)
		assert.Equal(t, "Chase", rows[1].PaymentMethod)
		assert.True(t, rows[1].Amount.Equal(dec("200")))
	})

	t.Run("collects per-line errors and keeps going", func(t *testing.T) {
		csv := strings.Join([]string{
			"date,amount,type",
			"2025-06-12,abc,expense",
			"not-a-date,10,expense",
			"2025-06-14,10,refund",
			"2025-06-15,10,expense",
		}, "\n")

		rows, errs, err := parseTransactionCSV(strings.NewReader(csv), 7)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Len(t, errs, 3)
		assert.Contains(t, errs[0], "invalid amount")
		assert.Contains(t, errs[1], "invalid date")
		assert.Contains(t, errs[2], "unknown transaction type")
	})

	t.Run("missing required column fails the upload", func(t *testing.T) {
		csv := "date,amount\n2025-06-12,10\n"

		_, _, err := parseTransactionCSV(strings.NewReader(csv), 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"type"`)
	})
}

func multipartCSV(t *testing.T, userID int, csv string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "transactions.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := authedRequest(t, http.MethodPost, "/api/v1/import/transactions", userID, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestImportService_ImportTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewImportService(db)

	t.Run("imports rows unreconciled in one unit", func(t *testing.T) {
		csv := strings.Join([]string{
			"date,amount,type,payment_method",
			"2025-06-12,200,expense,Chase",
			"2025-06-13,50,expense,Chase",
		}, "\n")

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO expenses \\(user_id, date, amount, type, .+\\) VALUES").
			WithArgs(7, sqlmock.AnyArg(), "200", "expense", "Chase", nil, nil, nil, nil, false, nil, nil).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO expenses \\(user_id, date, amount, type, .+\\) VALUES").
			WithArgs(7, sqlmock.AnyArg(), "50", "expense", "Chase", nil, nil, nil, nil, false, nil, nil).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		rec := httptest.NewRecorder()
		service.ImportTransactions(rec, multipartCSV(t, 7, csv))

		requireStatus(t, rec, http.StatusOK)

		var result ImportResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 2, result.Imported)
		assert.Empty(t, result.Errors)
		assert.NotEmpty(t, result.BatchID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected rows are reported alongside imported ones", func(t *testing.T) {
		csv := strings.Join([]string{
			"date,amount,type",
			"2025-06-12,abc,expense",
			"2025-06-13,10,expense",
		}, "\n")

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO expenses \\(user_id, date, amount, type, .+\\) VALUES").
			WithArgs(7, sqlmock.AnyArg(), "10", "expense", nil, nil, nil, nil, nil, false, nil, nil).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rec := httptest.NewRecorder()
		service.ImportTransactions(rec, multipartCSV(t, 7, csv))

		requireStatus(t, rec, http.StatusOK)

		var result ImportResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 1, result.Imported)
		require.Len(t, result.Errors, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upload with no valid rows is rejected", func(t *testing.T) {
		csv := "date,amount,type\n2025-06-12,abc,expense\n"

		rec := httptest.NewRecorder()
		service.ImportTransactions(rec, multipartCSV(t, 7, csv))

		requireStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("missing file part", func(t *testing.T) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		require.NoError(t, writer.Close())

		req := authedRequest(t, http.MethodPost, "/api/v1/import/transactions", 7, &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		rec := httptest.NewRecorder()
		service.ImportTransactions(rec, req)

		requireStatus(t, rec, http.StatusBadRequest)
	})
}
