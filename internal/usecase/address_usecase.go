package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

type AddressUsecase struct {
	addresses repo.AddressRepository
}

func NewAddressUsecase(addresses repo.AddressRepository) *AddressUsecase {
	return &AddressUsecase{addresses: addresses}
}

type AddressInput struct {
	RecipientName string `json:"recipient_name"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2"`
	City          string `json:"city"`
	Region        string `json:"region"`
	PostalCode    string `json:"postal_code"`
	Phone         string `json:"phone"`
	IsDefault     bool   `json:"is_default"`
}

func (in AddressInput) validate() error {
	if strings.TrimSpace(in.RecipientName) == "" {
		return NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "recipient_name is required")
	}
	if strings.TrimSpace(in.Line1) == "" {
		return NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "line1 is required")
	}
	if strings.TrimSpace(in.City) == "" {
		return NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "city is required")
	}
	return nil
}

func (u *AddressUsecase) List(ctx context.Context, userID int64) ([]model.Address, error) {
	if userID <= 0 {
		return []model.Address{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}

	items, err := u.addresses.ListByUserID(ctx, userID)
	if err != nil {
		return []model.Address{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return items, nil
}

func (u *AddressUsecase) Create(ctx context.Context, userID int64, in AddressInput) (model.Address, error) {
	if userID <= 0 {
		return model.Address{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	if err := in.validate(); err != nil {
		return model.Address{}, err
	}

	a, err := u.addresses.Create(ctx, model.Address{
		UserID:        userID,
		RecipientName: in.RecipientName,
		Line1:         in.Line1,
		Line2:         in.Line2,
		City:          in.City,
		Region:        in.Region,
		PostalCode:    in.PostalCode,
		Phone:         in.Phone,
	})
	if err != nil {
		return model.Address{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	if in.IsDefault {
		if err := u.addresses.SetDefault(ctx, userID, a.ID); err != nil {
			return model.Address{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		a.IsDefault = true
	}
	return a, nil
}

func (u *AddressUsecase) Update(ctx context.Context, userID int64, addressID int64, in AddressInput) (model.Address, error) {
	if userID <= 0 {
		return model.Address{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	if err := in.validate(); err != nil {
		return model.Address{}, err
	}

	//他人の住所は存在しない扱い
	owned, err := u.addresses.IsOwnedByUser(ctx, addressID, userID)
	if err != nil {
		return model.Address{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	if !owned {
		return model.Address{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "address not found")
	}

	if err := u.addresses.Update(ctx, model.Address{
		ID:            addressID,
		RecipientName: in.RecipientName,
		Line1:         in.Line1,
		Line2:         in.Line2,
		City:          in.City,
		Region:        in.Region,
		PostalCode:    in.PostalCode,
		Phone:         in.Phone,
	}); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Address{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "address not found")
		}
		return model.Address{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	if in.IsDefault {
		if err := u.addresses.SetDefault(ctx, userID, addressID); err != nil {
			return model.Address{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
	}

	a, err := u.addresses.FindByID(ctx, addressID)
	if err != nil {
		return model.Address{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return a, nil
}

func (u *AddressUsecase) Delete(ctx context.Context, userID int64, addressID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}

	owned, err := u.addresses.IsOwnedByUser(ctx, addressID, userID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	if !owned {
		return NewHTTPError(http.StatusNotFound, CodeNotFound, "address not found")
	}

	if err := u.addresses.Delete(ctx, addressID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "address not found")
		}
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return nil
}

func (u *AddressUsecase) SetDefault(ctx context.Context, userID int64, addressID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}

	err := u.addresses.SetDefault(ctx, userID, addressID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, CodeNotFound, "address not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return nil
}
