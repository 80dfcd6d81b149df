package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"opsdesk/internal/conflict"
	"opsdesk/internal/logger"
)

// Service is the read-only product catalog. It feeds the wizard's catalog
// step and supplies product-to-resource requirements; it never performs
// availability math, which trusts only the oracle's own totals.
type Service struct {
	products map[string]Product

	// Cache management
	lastLoaded time.Time
	mutex      sync.RWMutex
}

func NewService() *Service {
	return &Service{
		products: make(map[string]Product),
	}
}

// LoadFromFile replaces the catalog with the contents of a catalog.json.
func (s *Service) LoadFromFile(path string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger.LogInfo("Loading catalog from file: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var parsed CatalogData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	s.populate(parsed)
	s.lastLoaded = time.Now()

	logger.LogInfo("Successfully loaded catalog: %d products", len(s.products))
	return nil
}

// LoadData replaces the catalog with an in-memory dataset. Used by tests
// and by the demo seeder.
func (s *Service) LoadData(data CatalogData) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.populate(data)
	s.lastLoaded = time.Now()
}

func (s *Service) populate(data CatalogData) {
	s.products = make(map[string]Product)
	for _, p := range data.Products {
		if p.Available {
			s.products[p.ID] = p
		}
	}
}

// Check if cache needs refresh (optional future enhancement)
func (s *Service) IsStale(maxAge time.Duration) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded) > maxAge
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(id string) (Product, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	product, exists := s.products[id]
	return product, exists
}

// ValidateProduct checks if a product exists and is available.
func (s *Service) ValidateProduct(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	product, exists := s.products[id]
	return exists && product.Available
}

// RequirementsFor returns the resource demand one unit of a product
// creates. Unknown products have no demand.
func (s *Service) RequirementsFor(productID string) []Requirement {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil
	}
	out := make([]Requirement, len(product.Requirements))
	copy(out, product.Requirements)
	return out
}

// RequiredResources aggregates resource demand for a whole item list of
// (product id, quantity) pairs.
func (s *Service) RequiredResources(items []conflict.RequestItem) map[conflict.ResourceRef]int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	demand := make(map[conflict.ResourceRef]int)
	for _, item := range items {
		product, exists := s.products[item.ProductID]
		if !exists {
			continue
		}
		for _, req := range product.Requirements {
			demand[req.Resource] += req.QtyPerUnit * item.Quantity
		}
	}
	return demand
}

// AvailableProducts returns all sellable products sorted by name.
func (s *Service) AvailableProducts() []Product {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var products []Product
	for _, product := range s.products {
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	return products
}

// GetStats returns catalog statistics for debugging/monitoring
func (s *Service) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return map[string]interface{}{
		"products_count": len(s.products),
		"last_loaded":    s.lastLoaded,
		"cache_age":      time.Since(s.lastLoaded).String(),
	}
}
