package catalog

import (
	"maps"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Product is a sellable catalog entry.
type Product struct {
	ID          string         `json:"id" yaml:"id" validate:"required,max=128"`
	Title       string         `json:"title" yaml:"title" validate:"required"`
	Slug        string         `json:"slug" yaml:"slug"`
	Category    string         `json:"category,omitempty" yaml:"category"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Price       float64        `json:"productPrice" yaml:"price" validate:"gte=0"`
	Discount    float64        `json:"productDiscount" yaml:"discount" validate:"gte=0,lte=100"`
	UnitPrice   float64        `json:"unitPrice" yaml:"-"`
	Images      []string       `json:"images,omitempty" yaml:"images"`
	InStock     bool           `json:"inStock" yaml:"inStock"`
	Attributes  map[string]any `json:"attributes,omitempty" yaml:"attributes"`
}

// Thumbnail returns the first image, if any.
func (p Product) Thumbnail() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// CartProduct converts the entry into the value a cart line is created from. Display fields
// travel as line attributes.
func (p Product) CartProduct() cart.Product {
	attrs := cart.Attributes{}
	maps.Copy(attrs, p.Attributes)
	attrs["title"] = p.Title
	if p.Slug != "" {
		attrs["slug"] = p.Slug
	}
	if p.Category != "" {
		attrs["category"] = p.Category
	}
	if img := p.Thumbnail(); img != "" {
		attrs["image"] = img
	}
	return cart.Product{
		ID:              p.ID,
		ProductPrice:    p.Price,
		ProductDiscount: p.Discount,
		Attributes:      attrs,
	}
}

func withDerived(p Product) Product {
	p.UnitPrice = pricing.UnitPrice(p.Price, p.Discount)
	return p
}
