package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/storefront/internal/common"
)

// ErrProductNotFound is returned by sources when an id is unknown.
var ErrProductNotFound = errors.New("product not found")

// Source is where catalog entries come from.
type Source interface {
	All(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
}

// File is the YAML catalog document.
type File struct {
	Products []Product `yaml:"products"`
}

// YAMLSource reads products from a YAML file on every call; put a Cache in front of it.
type YAMLSource struct {
	Path string
}

// All returns every product in file order.
func (s YAMLSource) All(_ context.Context) ([]Product, error) {
	return ReadFile(s.Path)
}

// Get returns one product by id.
func (s YAMLSource) Get(ctx context.Context, id string) (Product, error) {
	products, err := s.All(ctx)
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

// ReadFile loads and validates a YAML catalog document.
func ReadFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document. Every product must carry an id and a title, prices
// cannot be negative, discounts are percentages and ids are unique.
func Parse(data []byte) ([]Product, error) {
	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Products))
	out := make([]Product, 0, len(doc.Products))
	for i, p := range doc.Products {
		if err := common.Validator().Struct(p); err != nil {
			return nil, fmt.Errorf("catalog product #%d (%q): %w", i+1, p.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("catalog product #%d: duplicate id %q", i+1, p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, withDerived(p))
	}
	return out, nil
}
