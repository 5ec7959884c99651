package models

import (
	"time"
)

// Product represents a catalog entry served by the product module
type Product struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug" binding:"required"`
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	PriceCents  int64             `json:"priceCents" binding:"gte=0"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Page represents one page of a listing
type Page struct {
	Number   int       `json:"page"`
	Size     int       `json:"size"`
	Total    int       `json:"total"`
	Products []Product `json:"products"`
}

// Clone returns a deep copy of the product
func (p *Product) Clone() *Product {
	clone := *p
	if p.Attributes != nil {
		clone.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			clone.Attributes[k] = v
		}
	}
	return &clone
}
