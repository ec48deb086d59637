package productctrl

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"skuflow/src/core/catalog"
)

// ProductService implements catalog.Store on PostgreSQL. SKU identity is
// case-insensitive: lookups match on LOWER(sku) while the stored record keeps
// the casing it was first created with.
type ProductService struct {
	db *gorm.DB
}

func NewProductService(db *gorm.DB) (*ProductService, error) {
	if err := db.AutoMigrate(&catalog.Product{}); err != nil {
		return nil, fmt.Errorf("failed to migrate products: %w", err)
	}
	return &ProductService{db: db}, nil
}

func (s *ProductService) Get(ctx context.Context, sku string) (*catalog.Product, error) {
	var product catalog.Product
	err := s.db.WithContext(ctx).
		Where("LOWER(sku) = ?", catalog.NormalizeSKU(sku)).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

func (s *ProductService) List(ctx context.Context, opts catalog.ListOptions) ([]catalog.Product, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Model(&catalog.Product{})
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		query = query.Where("sku ILIKE ? OR name ILIKE ? OR description ILIKE ?", pattern, pattern, pattern)
	}

	var products []catalog.Product
	err := query.Order("sku ASC").Limit(limit).Offset(opts.Offset).Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *ProductService) Create(ctx context.Context, p *catalog.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&catalog.Product{}).
			Where("LOWER(sku) = ?", catalog.NormalizeSKU(p.SKU)).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check sku: %w", err)
		}
		if count > 0 {
			return catalog.ErrSKUExists
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return nil
	})
}

func (s *ProductService) Update(ctx context.Context, sku string, upd catalog.Update) (*catalog.Product, error) {
	var updated catalog.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing catalog.Product
		err := tx.Where("LOWER(sku) = ?", catalog.NormalizeSKU(sku)).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return catalog.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load product: %w", err)
		}

		fields := map[string]interface{}{}
		if upd.Name != nil {
			fields["name"] = *upd.Name
		}
		if upd.Description != nil {
			fields["description"] = *upd.Description
		}
		if upd.IsActive != nil {
			fields["is_active"] = *upd.IsActive
		}
		if len(fields) > 0 {
			if err := tx.Model(&catalog.Product{}).
				Where("sku = ?", existing.SKU).
				Updates(fields).Error; err != nil {
				return fmt.Errorf("failed to update product: %w", err)
			}
		}
		return tx.Where("sku = ?", existing.SKU).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *ProductService) Upsert(ctx context.Context, p catalog.Product) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing catalog.Product
		err := tx.Where("LOWER(sku) = ?", catalog.NormalizeSKU(p.SKU)).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			return tx.Create(&p).Error
		}
		if err != nil {
			return fmt.Errorf("failed to load product: %w", err)
		}
		return tx.Model(&catalog.Product{}).
			Where("sku = ?", existing.SKU).
			Updates(map[string]interface{}{
				"name":        p.Name,
				"description": p.Description,
				"is_active":   p.IsActive,
			}).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert product: %w", err)
	}
	return created, nil
}

func (s *ProductService) Delete(ctx context.Context, sku string) error {
	result := s.db.WithContext(ctx).
		Where("LOWER(sku) = ?", catalog.NormalizeSKU(sku)).
		Delete(&catalog.Product{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *ProductService) DeleteAll(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&catalog.Product{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete products: %w", result.Error)
	}
	return result.RowsAffected, nil
}
