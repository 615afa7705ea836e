package model

import "time"

type Channel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ServerID  uint      `gorm:"index;not null" json:"server_id"`
	OwnerID   uint      `json:"owner_id"`
	Name      string    `gorm:"not null" json:"name"`
	Topic     string    `json:"topic"`
}
