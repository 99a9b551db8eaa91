package domain

import "time"

// Site represents a monitored Shopify storefront.
// Site records are owned by the dashboard; the measurement core only reads them.
type Site struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	URL             string     `db:"url" json:"url"`
	CategoryURL     *string    `db:"category_url" json:"category_url,omitempty"`
	ProductURL      *string    `db:"product_url" json:"product_url,omitempty"`
	AccessToken     *string    `db:"access_token" json:"-"`
	ScheduleEnabled bool       `db:"schedule_enabled" json:"schedule_enabled"`
	ScheduleSpec    *string    `db:"schedule_spec" json:"schedule_spec,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	LastTestedAt    *time.Time `db:"last_tested_at" json:"last_tested_at,omitempty"`
}
