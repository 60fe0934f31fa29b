package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"plant-store/internal/domain"
	"plant-store/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
)

// ProductQuery describes a catalog listing request. Search takes precedence
// over Category when both are set.
type ProductQuery struct {
	Category  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ProductInput carries the writable fields of a product
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Image       string
	Stock       int
}

// CatalogService defines the interface for the product catalog
type CatalogService interface {
	ListProducts(ctx context.Context, query ProductQuery) ([]*domain.Product, int, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListByCategory(ctx context.Context, category string) ([]*domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

type catalogService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(productRepo repository.ProductRepository, categoryRepo repository.CategoryRepository) CatalogService {
	return &catalogService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
	}
}

// ListProducts returns a page of the catalog and the total number of matches
func (s *catalogService) ListProducts(ctx context.Context, query ProductQuery) ([]*domain.Product, int, error) {
	if q := strings.TrimSpace(query.Search); q != "" {
		products, total, err := s.productRepo.Search(ctx, q, query.Page, query.PageSize)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to search products: %w", err)
		}
		return products, total, nil
	}

	products, total, err := s.productRepo.List(ctx, repository.ProductFilter{
		Category:  query.Category,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: repository.SortOrder(strings.ToUpper(query.SortOrder)),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetProduct retrieves a single product
func (s *catalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// ListByCategory returns every product in a category. Unknown categories
// yield an empty list.
func (s *catalogService) ListByCategory(ctx context.Context, category string) ([]*domain.Product, error) {
	products, _, err := s.productRepo.List(ctx, repository.ProductFilter{Category: category})
	if err != nil {
		return nil, fmt.Errorf("failed to list products by category: %w", err)
	}
	return products, nil
}

// ListCategories returns the names of categories that currently have products
func (s *catalogService) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names, nil
}

// CreateProduct adds a product to the catalog
func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error) {
	if err := checkProductInput(input); err != nil {
		return nil, err
	}

	product := input.apply(&domain.Product{})
	if err := s.productRepo.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

// UpdateProduct replaces the writable fields of an existing product
func (s *catalogService) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*domain.Product, error) {
	if err := checkProductInput(input); err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	input.apply(product)
	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

// DeleteProduct removes a product from the catalog
func (s *catalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

func checkProductInput(input ProductInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case input.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case input.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	case strings.TrimSpace(input.Category) == "":
		return fmt.Errorf("%w: category is required", ErrInvalidProduct)
	}
	return nil
}

func (in ProductInput) apply(p *domain.Product) *domain.Product {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price.Round(2)
	p.Category = in.Category
	p.Image = in.Image
	p.Stock = in.Stock
	return p
}
