// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"github.com/tobalt/cityalerts/internal/models"
)

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, slug) VALUES (?, ?)`, category.Name, category.Slug)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	category.ID = id
	return nil
}

// GetCategory retrieves a category by ID.
func (r *Repository) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var cat models.Category
	if err := r.db.GetContext(ctx, &cat, `SELECT * FROM categories WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &cat, nil
}

// CategoryCount pairs a category with its published alert count.
type CategoryCount struct {
	models.Category
	Count int64 `db:"count" json:"count"`
}

// ListCategories returns all categories with their published alert counts.
func (r *Repository) ListCategories(ctx context.Context) ([]CategoryCount, error) {
	var cats []CategoryCount
	err := r.db.SelectContext(ctx, &cats,
		`SELECT c.id, c.name, c.slug,
		   (SELECT COUNT(*) FROM alert_categories ac
		      JOIN alerts a ON a.id = ac.alert_id
		    WHERE ac.category_id = c.id AND a.status = ?) AS count
		 FROM categories c ORDER BY c.name`,
		models.StatusPublished)
	return cats, err
}
