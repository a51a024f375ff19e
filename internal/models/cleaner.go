package models

import "time"

// Cleaner is a roster entry loaded from configuration. The scheduler carries
// CleanerID through generated occurrences but never manages staffing.
type Cleaner struct {
	ID        int64     `yaml:"id"`
	Name      string    `yaml:"name"`
	Phone     string    `yaml:"phone"`
	SortOrder int64     `yaml:"sort_order" json:"sort_order"`
	IsActive  bool      `yaml:"is_active" json:"is_active"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}
