package model

import "time"

// Server represents the server table (servers). Membership lives in the
// server_members join table; a user can belong to any number of servers.
type Server struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	OwnerID     uint      `gorm:"index" json:"owner_id"`
	CategoryID  uint      `gorm:"index" json:"category_id"`
	Icon        string    `json:"icon"`

	// Relationships
	Category Category  `json:"category"`
	Members  []User    `gorm:"many2many:server_members" json:"-"`
	Channels []Channel `gorm:"foreignKey:ServerID" json:"channels,omitempty"`
}
