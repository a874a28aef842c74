// Package datagen generates realistic partner and product records for
// seeding an Odoo database before a load test.
package datagen

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v7"
)

// Output file names and default counts.
const (
	PartnersFile = "test_partners.json"
	ProductsFile = "test_products.json"

	DefaultPartners = 100
	DefaultProducts = 50
)

const maxDescription = 200

// ErrInvalidCount is returned for a negative record count.
var ErrInvalidCount = errors.New("datagen: invalid count")

var productTypes = []string{"product", "service", "consu"}

// Partner is a res.partner record.
type Partner struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	IsCompany bool   `json:"is_company"`
	Street    string `json:"street"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
	CountryID int    `json:"country_id"`
	// CategoryID is an Odoo x2many "replace" command: [[6, 0, [ids]]].
	CategoryID [][]any `json:"category_id"`
	// Website is only set for companies.
	Website string `json:"website,omitempty"`
}

// Product is a product.template record.
type Product struct {
	Name          string  `json:"name"`
	ListPrice     float64 `json:"list_price"`
	StandardPrice float64 `json:"standard_price"`
	Type          string  `json:"type"`
	CategID       int     `json:"categ_id"`
	Active        bool    `json:"active"`
	Description   string  `json:"description"`
	Weight        float64 `json:"weight"`
	Volume        float64 `json:"volume"`
}

// Generator produces records from its own faker.
type Generator struct {
	faker *gofakeit.Faker
}

// New creates a generator. Seed 0 picks a random seed.
func New(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Partners generates n partners, roughly half of them companies.
func (g *Generator) Partners(n int) []Partner {
	f := g.faker
	out := make([]Partner, 0, n)
	for range n {
		p := Partner{
			IsCompany:  f.Bool(),
			Email:      f.Email(),
			Phone:      f.Phone(),
			Street:     f.Street(),
			City:       f.City(),
			Zip:        f.Zip(),
			CountryID:  f.Number(1, 50),
			CategoryID: [][]any{{6, 0, []int{f.Number(1, 10)}}},
		}
		if p.IsCompany {
			p.Name = f.Company()
			p.Website = f.URL()
		} else {
			p.Name = f.Name()
		}
		out = append(out, p)
	}
	return out
}

// Products generates n products.
func (g *Generator) Products(n int) []Product {
	f := g.faker
	out := make([]Product, 0, n)
	for range n {
		out = append(out, Product{
			Name:          title(f.Word()) + " " + title(f.Word()),
			ListPrice:     round(f.Float64Range(5, 500), 2),
			StandardPrice: round(f.Float64Range(3, 300), 2),
			Type:          productTypes[f.Number(0, len(productTypes)-1)],
			CategID:       f.Number(1, 20),
			Active:        true,
			Description:   clip(f.Sentence(30), maxDescription),
			Weight:        round(f.Float64Range(0.1, 10), 2),
			Volume:        round(f.Float64Range(0.01, 1), 3),
		})
	}
	return out
}

// Save writes PartnersFile and ProductsFile into dir and returns their paths.
func (g *Generator) Save(dir string, partners, products int) ([]string, error) {
	if partners < 0 || products < 0 {
		return nil, fmt.Errorf("%w: partners=%d products=%d", ErrInvalidCount, partners, products)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	partnersPath := filepath.Join(dir, PartnersFile)
	if err := writeJSON(partnersPath, g.Partners(partners)); err != nil {
		return nil, err
	}
	productsPath := filepath.Join(dir, ProductsFile)
	if err := writeJSON(productsPath, g.Products(products)); err != nil {
		return nil, err
	}
	return []string{partnersPath, productsPath}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// clip shortens s to at most n bytes on a word boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	if i := strings.LastIndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " ,;") + "."
}
