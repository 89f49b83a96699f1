package models

import "time"

type User struct {
	ID        int       `json:"id" example:"1"`
	Username  string    `json:"username" example:"jdoe"`
	Name      string    `json:"name" example:"John Doe"`
	Email     string    `json:"email" example:"user@example.com"`
	CreatedAt time.Time `json:"created_at"`
}
