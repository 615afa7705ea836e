package model

import "time"

// Category is a classification label servers belong to. The name doubles as
// the filter key of the server list endpoint.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
}
