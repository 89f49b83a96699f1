package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embakulas/expense-tracker/internal/models"
)

func TestMasterDataService_Categories(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewMasterDataService(db)

	t.Run("lists categories filtered by type", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, name, type FROM categories WHERE user_id = \\$1 AND type = \\$2 ORDER BY name").
			WithArgs(1, "expense").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "type"}).
				AddRow(1, 1, "Groceries", "expense").
				AddRow(2, 1, "Transport", "expense"))

		rec := httptest.NewRecorder()
		service.ListCategories(rec, authedRequest(t, http.MethodGet, "/api/v1/categories?type=expense", 1, nil))

		requireStatus(t, rec, http.StatusOK)

		var categories []models.Category
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
		require.Len(t, categories, 2)
		assert.Equal(t, "Groceries", categories[0].Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("adds a category", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO categories \\(user_id, name, type\\) VALUES \\(\\$1, \\$2, \\$3\\)").
			WithArgs(1, "Groceries", "expense").
			WillReturnResult(sqlmock.NewResult(1, 1))

		rec := httptest.NewRecorder()
		service.AddCategory(rec, authedRequest(t, http.MethodPost, "/api/v1/categories", 1,
			jsonBody(`{"name": "Groceries", "type": "expense"}`)))

		requireStatus(t, rec, http.StatusCreated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate category conflicts", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO categories \\(user_id, name, type\\) VALUES \\(\\$1, \\$2, \\$3\\)").
			WithArgs(1, "Groceries", "expense").
			WillReturnError(&pq.Error{Code: "23505"})

		rec := httptest.NewRecorder()
		service.AddCategory(rec, authedRequest(t, http.MethodPost, "/api/v1/categories", 1,
			jsonBody(`{"name": "Groceries", "type": "expense"}`)))

		requireStatus(t, rec, http.StatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown type fails validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		service.AddCategory(rec, authedRequest(t, http.MethodPost, "/api/v1/categories", 1,
			jsonBody(`{"name": "Groceries", "type": "misc"}`)))

		requireStatus(t, rec, http.StatusBadRequest)
	})
}

func TestMasterDataService_Subcategories(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewMasterDataService(db)

	t.Run("requires the category parameter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		service.ListSubcategories(rec, authedRequest(t, http.MethodGet, "/api/v1/subcategories", 1, nil))

		requireStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("lists subcategories under a category", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, category_name, sub_category_name FROM subcategories WHERE user_id = \\$1 AND category_name = \\$2 ORDER BY sub_category_name").
			WithArgs(1, "Groceries").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "category_name", "sub_category_name"}).
				AddRow(1, 1, "Groceries", "Produce"))

		rec := httptest.NewRecorder()
		service.ListSubcategories(rec, authedRequest(t, http.MethodGet, "/api/v1/subcategories?category=Groceries", 1, nil))

		requireStatus(t, rec, http.StatusOK)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("adds a subcategory", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO subcategories \\(user_id, category_name, sub_category_name\\) VALUES \\(\\$1, \\$2, \\$3\\)").
			WithArgs(1, "Groceries", "Produce").
			WillReturnResult(sqlmock.NewResult(1, 1))

		rec := httptest.NewRecorder()
		service.AddSubcategory(rec, authedRequest(t, http.MethodPost, "/api/v1/subcategories", 1,
			jsonBody(`{"category_name": "Groceries", "sub_category_name": "Produce"}`)))

		requireStatus(t, rec, http.StatusCreated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMasterDataService_PaymentMethods(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewMasterDataService(db)

	t.Run("lists payment methods", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, name FROM payment_methods WHERE user_id = \\$1 ORDER BY name").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}).
				AddRow(1, 1, "Chase"))

		rec := httptest.NewRecorder()
		service.ListPaymentMethods(rec, authedRequest(t, http.MethodGet, "/api/v1/payment-methods", 1, nil))

		requireStatus(t, rec, http.StatusOK)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("adds a payment method", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO payment_methods \\(user_id, name\\) VALUES \\(\\$1, \\$2\\)").
			WithArgs(1, "Chase").
			WillReturnResult(sqlmock.NewResult(1, 1))

		rec := httptest.NewRecorder()
		service.AddPaymentMethod(rec, authedRequest(t, http.MethodPost, "/api/v1/payment-methods", 1,
			jsonBody(`{"name": "Chase"}`)))

		requireStatus(t, rec, http.StatusCreated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
