package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the canonical catalog row. Stock is only decremented by order
// reservation and restored by its compensation.
type Product struct {
	ID          string          `gorm:"column:id;type:varchar(10);primaryKey"`
	Name        string          `gorm:"column:name;type:varchar(100);not null"`
	CategoryID  string          `gorm:"column:category_id;type:varchar(10)"`
	SellerID    string          `gorm:"column:seller_id;type:varchar(10)"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Description string          `gorm:"column:description;type:text"`
	Tags        string          `gorm:"column:tags;type:text"`
	Stock       int             `gorm:"column:stock;not null;default:0"`
}

// TagList splits the comma separated tags column.
func (p Product) TagList() []string {
	if strings.TrimSpace(p.Tags) == "" {
		return nil
	}
	raw := strings.Split(p.Tags, ",")
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
