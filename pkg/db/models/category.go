package models

// Category groups products for browsing and the search category filter.
type Category struct {
	ID          string `gorm:"column:id;type:varchar(10);primaryKey"`
	Name        string `gorm:"column:name;type:varchar(100);not null"`
	Description string `gorm:"column:description;type:text"`
}
