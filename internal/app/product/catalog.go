package product

import "github.com/wangfeng/cherrycake-gateway/pkg/models"

// Catalog returns the demo products stored when seeding is enabled.
func Catalog() []models.Product {
	return []models.Product{
		{
			Slug:        "red-shoes",
			Name:        "Red shoes",
			Description: "Leather shoes, hand stitched.",
			PriceCents:  8900,
			Attributes:  map[string]string{"color": "red", "coupon": "CHERRY10", "discount": "10%"},
		},
		{
			Slug:        "blue-scarf",
			Name:        "Blue scarf",
			Description: "Merino wool.",
			PriceCents:  2500,
			Attributes:  map[string]string{"color": "blue"},
		},
		{
			Slug:        "cake-stand",
			Name:        "Cake stand",
			Description: "Porcelain, 30cm.",
			PriceCents:  4200,
		},
	}
}
