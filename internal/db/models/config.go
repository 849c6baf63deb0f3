package models

import "time"

// Config is a durable key/value row. The token store keeps the access and
// refresh tokens here under fixed key names.
type Config struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
