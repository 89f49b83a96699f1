package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceService_ApplyDeltas(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	t.Run("checking delta applied", func(t *testing.T) {
		mock.ExpectExec("UPDATE checking_accounts SET current_balance = current_balance \\+ \\$1 WHERE user_id = \\$2 AND name = \\$3").
			WithArgs("-200", 1, "Chase").
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := service.ApplyCheckingDelta(db, 1, "Chase", dec("-200"))
		assert.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("checking delta against a missing account is not applied", func(t *testing.T) {
		mock.ExpectExec("UPDATE checking_accounts SET current_balance = current_balance \\+ \\$1 WHERE user_id = \\$2 AND name = \\$3").
			WithArgs("-200", 1, "NoSuchBank").
			WillReturnResult(sqlmock.NewResult(0, 0))

		applied, err := service.ApplyCheckingDelta(db, 1, "NoSuchBank", dec("-200"))
		assert.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit card delta hits used_limit only", func(t *testing.T) {
		mock.ExpectExec("UPDATE credit_cards SET used_limit = used_limit \\+ \\$1 WHERE user_id = \\$2 AND name = \\$3").
			WithArgs("89.99", 1, "Visa").
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := service.ApplyCreditCardDelta(db, 1, "Visa", dec("89.99"))
		assert.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("splitwise delta stamps last_updated", func(t *testing.T) {
		mock.ExpectExec("UPDATE splitwise_people SET net_balance = net_balance \\+ \\$1, last_updated = NOW\\(\\) WHERE user_id = \\$2 AND name = \\$3").
			WithArgs("-50", 1, "Sam").
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := service.ApplySplitwiseDelta(db, 1, "Sam", dec("-50"))
		assert.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBalanceService_Lookups(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	t.Run("get checking account", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, name, current_balance FROM checking_accounts WHERE user_id = \\$1 AND name = \\$2").
			WithArgs(1, "Chase").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "current_balance"}).
				AddRow(3, 1, "Chase", "1000"))

		acct, err := service.GetCheckingAccount(1, "Chase")
		require.NoError(t, err)
		assert.Equal(t, "Chase", acct.Name)
		assert.True(t, acct.CurrentBalance.Equal(dec("1000")))
	})

	t.Run("missing account returns ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, name, current_balance FROM checking_accounts WHERE user_id = \\$1 AND name = \\$2").
			WithArgs(1, "Nope").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "current_balance"}))

		_, err := service.GetCheckingAccount(1, "Nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("credit card exists", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM credit_cards WHERE user_id = \\$1 AND name = \\$2\\)").
			WithArgs(1, "Visa").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := service.CreditCardExists(db, 1, "Visa")
		assert.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBalanceService_GetBalances(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	mock.ExpectQuery("SELECT id, user_id, name, current_balance FROM checking_accounts WHERE user_id = \\$1 ORDER BY name").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "current_balance"}).
			AddRow(1, 1, "Chase", "800"))
	mock.ExpectQuery("SELECT id, user_id, name, total_limit, used_limit FROM credit_cards WHERE user_id = \\$1 ORDER BY name").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "total_limit", "used_limit"}).
			AddRow(2, 1, "Visa", "5000", "1200"))
	mock.ExpectQuery("SELECT id, user_id, name, net_balance, last_updated FROM splitwise_people WHERE user_id = \\$1 ORDER BY name").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "net_balance", "last_updated"}).
			AddRow(3, 1, "Sam", "-50", time.Now()))

	rec := httptest.NewRecorder()
	service.GetBalances(rec, authedRequest(t, http.MethodGet, "/api/v1/balances", 1, nil))

	requireStatus(t, rec, http.StatusOK)

	var resp BalancesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.CheckingAccounts, 1)
	require.Len(t, resp.CreditCards, 1)
	require.Len(t, resp.SplitwisePeople, 1)
	assert.True(t, resp.CheckingAccounts[0].CurrentBalance.Equal(dec("800")))
	// available limit is derived, never stored
	assert.True(t, resp.CreditCards[0].AvailableLimit.Equal(dec("3800")))
	assert.True(t, resp.SplitwisePeople[0].NetBalance.Equal(dec("-50")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceService_AddCheckingAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	t.Run("creates the account and returns it", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO checking_accounts \\(user_id, name, current_balance\\) VALUES \\(\\$1, \\$2, \\$3\\)").
			WithArgs(1, "Chase", "1000").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT id, user_id, name, current_balance FROM checking_accounts WHERE user_id = \\$1 AND name = \\$2").
			WithArgs(1, "Chase").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "current_balance"}).
				AddRow(1, 1, "Chase", "1000"))

		rec := httptest.NewRecorder()
		service.AddCheckingAccount(rec, authedRequest(t, http.MethodPost, "/api/v1/accounts/checking", 1,
			jsonBody(`{"name": "Chase", "initial_balance": 1000}`)))

		requireStatus(t, rec, http.StatusCreated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate name returns conflict", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO checking_accounts \\(user_id, name, current_balance\\) VALUES \\(\\$1, \\$2, \\$3\\)").
			WithArgs(1, "Chase", "0").
			WillReturnError(&pq.Error{Code: "23505"})

		rec := httptest.NewRecorder()
		service.AddCheckingAccount(rec, authedRequest(t, http.MethodPost, "/api/v1/accounts/checking", 1,
			jsonBody(`{"name": "Chase"}`)))

		requireStatus(t, rec, http.StatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing name fails validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		service.AddCheckingAccount(rec, authedRequest(t, http.MethodPost, "/api/v1/accounts/checking", 1,
			jsonBody(`{"initial_balance": 100}`)))

		requireStatus(t, rec, http.StatusBadRequest)
	})
}

func TestBalanceService_AddCreditCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	t.Run("new card starts with zero used limit", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO credit_cards \\(user_id, name, total_limit, used_limit\\) VALUES \\(\\$1, \\$2, \\$3, 0\\)").
			WithArgs(1, "Visa", "5000").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT id, user_id, name, total_limit, used_limit FROM credit_cards WHERE user_id = \\$1 AND name = \\$2").
			WithArgs(1, "Visa").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "total_limit", "used_limit"}).
				AddRow(1, 1, "Visa", "5000", "0"))

		rec := httptest.NewRecorder()
		service.AddCreditCard(rec, authedRequest(t, http.MethodPost, "/api/v1/accounts/credit-cards", 1,
			jsonBody(`{"name": "Visa", "total_limit": 5000}`)))

		requireStatus(t, rec, http.StatusCreated)

		var card CreditCardView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
		assert.True(t, card.AvailableLimit.Equal(dec("5000")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative total limit is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		service.AddCreditCard(rec, authedRequest(t, http.MethodPost, "/api/v1/accounts/credit-cards", 1,
			jsonBody(`{"name": "Visa", "total_limit": -100}`)))

		requireStatus(t, rec, http.StatusBadRequest)
	})
}

func TestBalanceService_AddSplitwisePerson(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	mock.ExpectExec("INSERT INTO splitwise_people \\(user_id, name, net_balance, last_updated\\) VALUES \\(\\$1, \\$2, 0, NOW\\(\\)\\)").
		WithArgs(1, "Sam").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, user_id, name, net_balance, last_updated FROM splitwise_people WHERE user_id = \\$1 AND name = \\$2").
		WithArgs(1, "Sam").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "net_balance", "last_updated"}).
			AddRow(1, 1, "Sam", "0", time.Now()))

	rec := httptest.NewRecorder()
	service.AddSplitwisePerson(rec, authedRequest(t, http.MethodPost, "/api/v1/splitwise/people", 1,
		jsonBody(`{"name": "Sam"}`)))

	requireStatus(t, rec, http.StatusCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
