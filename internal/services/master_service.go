package services

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/embakulas/expense-tracker/internal/middleware"
	"github.com/embakulas/expense-tracker/internal/models"
)

// MasterDataService manages the lists backing the input form dropdowns:
// categories, subcategories, and payment methods.
type MasterDataService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewMasterDataService(db *sql.DB) *MasterDataService {
	return &MasterDataService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// ListCategories returns category names, optionally filtered by transaction type
// @Summary List categories
// @Tags master-data
// @Produce json
// @Param type query string false "Filter by transaction type"
// @Success 200 {array} models.Category
// @Router /categories [get]
func (ms *MasterDataService) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	query := `SELECT id, user_id, name, type FROM categories WHERE user_id = $1`
	args := []any{userID}
	if t := r.URL.Query().Get("type"); t != "" {
		query += ` AND type = $2`
		args = append(args, t)
	}
	query += ` ORDER BY name`

	rows, err := ms.db.Query(query, args...)
	if err != nil {
		log.Printf("[MASTER] Failed to list categories for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Type); err != nil {
			SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
			return
		}
		categories = append(categories, c)
	}

	SendJSON(w, http.StatusOK, categories)
}

// AddCategoryRequest creates a category for a transaction type.
type AddCategoryRequest struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required,oneof=expense income transfer debt_payment"`
}

// AddCategory creates a new category
// @Summary Add category
// @Tags master-data
// @Accept json
// @Produce json
// @Param request body AddCategoryRequest true "Category data"
// @Success 201 {object} map[string]string
// @Router /categories [post]
func (ms *MasterDataService) AddCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AddCategoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := ms.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := ms.db.Exec(`INSERT INTO categories (user_id, name, type) VALUES ($1, $2, $3)`,
		userID, req.Name, req.Type); err != nil {
		if isUniqueViolation(err) {
			SendErrorResponse(w, "Category already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[MASTER] Failed to add category %q for user %d: %v", req.Name, userID, err)
		SendErrorResponse(w, "Failed to add category", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusCreated, map[string]string{"message": "Category added"})
}

// ListSubcategories returns subcategories for a category
// @Summary List subcategories
// @Tags master-data
// @Produce json
// @Param category query string true "Category name"
// @Success 200 {array} models.Subcategory
// @Router /subcategories [get]
func (ms *MasterDataService) ListSubcategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		SendErrorResponse(w, "category query parameter is required", http.StatusBadRequest, nil)
		return
	}

	rows, err := ms.db.Query(`SELECT id, user_id, category_name, sub_category_name FROM subcategories WHERE user_id = $1 AND category_name = $2 ORDER BY sub_category_name`,
		userID, category)
	if err != nil {
		log.Printf("[MASTER] Failed to list subcategories for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch subcategories", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	subcategories := []models.Subcategory{}
	for rows.Next() {
		var sc models.Subcategory
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.CategoryName, &sc.SubCategoryName); err != nil {
			SendErrorResponse(w, "Failed to fetch subcategories", http.StatusInternalServerError, nil)
			return
		}
		subcategories = append(subcategories, sc)
	}

	SendJSON(w, http.StatusOK, subcategories)
}

// AddSubcategoryRequest creates a subcategory under a category.
type AddSubcategoryRequest struct {
	CategoryName    string `json:"category_name" validate:"required"`
	SubCategoryName string `json:"sub_category_name" validate:"required"`
}

// AddSubcategory creates a new subcategory
// @Summary Add subcategory
// @Tags master-data
// @Accept json
// @Produce json
// @Param request body AddSubcategoryRequest true "Subcategory data"
// @Success 201 {object} map[string]string
// @Router /subcategories [post]
func (ms *MasterDataService) AddSubcategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AddSubcategoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := ms.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := ms.db.Exec(`INSERT INTO subcategories (user_id, category_name, sub_category_name) VALUES ($1, $2, $3)`,
		userID, req.CategoryName, req.SubCategoryName); err != nil {
		if isUniqueViolation(err) {
			SendErrorResponse(w, "Subcategory already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[MASTER] Failed to add subcategory %q for user %d: %v", req.SubCategoryName, userID, err)
		SendErrorResponse(w, "Failed to add subcategory", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusCreated, map[string]string{"message": "Subcategory added"})
}

// ListPaymentMethods returns the owner's payment methods
// @Summary List payment methods
// @Tags master-data
// @Produce json
// @Success 200 {array} models.PaymentMethod
// @Router /payment-methods [get]
func (ms *MasterDataService) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := ms.db.Query(`SELECT id, user_id, name FROM payment_methods WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		log.Printf("[MASTER] Failed to list payment methods for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch payment methods", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	methods := []models.PaymentMethod{}
	for rows.Next() {
		var m models.PaymentMethod
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name); err != nil {
			SendErrorResponse(w, "Failed to fetch payment methods", http.StatusInternalServerError, nil)
			return
		}
		methods = append(methods, m)
	}

	SendJSON(w, http.StatusOK, methods)
}

// AddPaymentMethodRequest creates a payment method.
type AddPaymentMethodRequest struct {
	Name string `json:"name" validate:"required"`
}

// AddPaymentMethod creates a new payment method
// @Summary Add payment method
// @Tags master-data
// @Accept json
// @Produce json
// @Param request body AddPaymentMethodRequest true "Payment method data"
// @Success 201 {object} map[string]string
// @Router /payment-methods [post]
func (ms *MasterDataService) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AddPaymentMethodRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := ms.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := ms.db.Exec(`INSERT INTO payment_methods (user_id, name) VALUES ($1, $2)`,
		userID, req.Name); err != nil {
		if isUniqueViolation(err) {
			SendErrorResponse(w, "Payment method already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[MASTER] Failed to add payment method %q for user %d: %v", req.Name, userID, err)
		SendErrorResponse(w, "Failed to add payment method", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusCreated, map[string]string{"message": "Payment method added"})
}
