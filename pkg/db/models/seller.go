package models

import "time"

// Seller is a read-only reference row for the artisan behind a product.
type Seller struct {
	ID        string     `gorm:"column:id;type:varchar(10);primaryKey"`
	Name      string     `gorm:"column:name;type:varchar(100);not null"`
	Specialty string     `gorm:"column:specialty;type:varchar(100)"`
	Rating    float64    `gorm:"column:rating"`
	Joined    *time.Time `gorm:"column:joined;type:date"`
}
