package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

type CategoryUsecase struct {
	categories repo.CategoryRepository
}

func NewCategoryUsecase(categories repo.CategoryRepository) *CategoryUsecase {
	return &CategoryUsecase{categories: categories}
}

func (u *CategoryUsecase) List(ctx context.Context) ([]model.Category, error) {
	items, err := u.categories.List(ctx)
	if err != nil {
		return []model.Category{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return items, nil
}

func (u *CategoryUsecase) GetBySlug(ctx context.Context, slug string) (model.Category, error) {
	c, err := u.categories.FindBySlug(ctx, slug)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Category{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "category not found")
	}
	if err != nil {
		return model.Category{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return c, nil
}

type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (u *CategoryUsecase) Create(ctx context.Context, in CategoryInput) (model.Category, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.Category{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "name is required")
	}

	c, err := u.categories.Create(ctx, model.Category{
		Name:        in.Name,
		Slug:        Slugify(in.Name),
		Description: in.Description,
	})
	if err != nil {
		return model.Category{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return c, nil
}

func (u *CategoryUsecase) Update(ctx context.Context, id int64, in CategoryInput) (model.Category, error) {
	c, err := u.categories.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Category{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "category not found")
	}
	if err != nil {
		return model.Category{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	if strings.TrimSpace(in.Name) != "" {
		c.Name = in.Name
		c.Slug = Slugify(in.Name)
	}
	if in.Description != "" {
		c.Description = in.Description
	}

	if err := u.categories.Update(ctx, c); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Category{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "category not found")
		}
		return model.Category{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return c, nil
}

func (u *CategoryUsecase) Delete(ctx context.Context, id int64) error {
	err := u.categories.Delete(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, CodeNotFound, "category not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return nil
}
