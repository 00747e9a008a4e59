package models

import "time"

// Course is the catalog entry an enrollment request pays for.
type Course struct {
	ID         string    `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Instructor string    `db:"instructor" json:"instructor"`
	Price      float64   `db:"price" json:"price"`
	Currency   string    `db:"currency" json:"currency"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
