package ledger

import (
	"context"
	"strings"

	"github.com/NgigiN/finboard/internal/storage"
)

// DefaultCategories are available to every user without being stored.
var DefaultCategories = []string{
	"Alimentação",
	"Clientes",
	"Lazer",
	"Transporte",
	"Saúde",
	"Educação",
	"Moradia",
	"Outros",
}

func (s *Service) ListCategories(ctx context.Context, uc UserContext) ([]storage.Category, error) {
	var list []storage.Category
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		var err error
		list, err = tx.Categories()
		return err
	})
	return list, err
}

// CategoryNames returns the defaults followed by the user's own categories.
func (s *Service) CategoryNames(ctx context.Context, uc UserContext) ([]string, error) {
	custom, err := s.ListCategories(ctx, uc)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(DefaultCategories)+len(custom)+1)
	names = append(names, DefaultCategories...)
	names = append(names, InvestmentCategory)
	for _, c := range custom {
		names = append(names, c.Name)
	}
	return names, nil
}

// MatchCategory returns the canonical spelling of name among the user's
// categories, ignoring case.
func (s *Service) MatchCategory(ctx context.Context, uc UserContext, name string) (string, bool, error) {
	names, err := s.CategoryNames(ctx, uc)
	if err != nil {
		return "", false, err
	}
	for _, n := range names {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return n, true, nil
		}
	}
	return "", false, nil
}

func (s *Service) CreateCategory(ctx context.Context, uc UserContext, name string) (*storage.Category, error) {
	name = strings.TrimSpace(name)
	if err := required("category name", name); err != nil {
		return nil, err
	}

	var category *storage.Category
	err := s.run(ctx, uc, "create_category", func(tx *storage.Tx) error {
		existing, err := tx.Categories()
		if err != nil {
			return err
		}
		taken := append([]string{InvestmentCategory}, DefaultCategories...)
		for _, c := range existing {
			taken = append(taken, c.Name)
		}
		for _, n := range taken {
			if strings.EqualFold(n, name) {
				return ErrCategoryExists
			}
		}
		category = &storage.Category{Name: name}
		return tx.CreateCategory(category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Service) DeleteCategory(ctx context.Context, uc UserContext, id string) error {
	return s.run(ctx, uc, "delete_category", func(tx *storage.Tx) error {
		return notFound(tx.DeleteCategory(id), ErrCategoryNotFound, id)
	})
}
