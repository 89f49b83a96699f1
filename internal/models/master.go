package models

// Master-list rows backing the input form dropdowns. All owner-scoped.

type Category struct {
	ID     int    `json:"id" db:"id"`
	UserID int    `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`
	Type   string `json:"type" db:"type"`
}

type Subcategory struct {
	ID              int    `json:"id" db:"id"`
	UserID          int    `json:"user_id" db:"user_id"`
	CategoryName    string `json:"category_name" db:"category_name"`
	SubCategoryName string `json:"sub_category_name" db:"sub_category_name"`
}

type PaymentMethod struct {
	ID     int    `json:"id" db:"id"`
	UserID int    `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`
}
