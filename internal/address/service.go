package address

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Input captures the writable fields of a saved address.
type Input struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
}

// Service exposes saved-address operations. Exactly one address per
// user carries the default flag whenever the user has any.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error)
	Create(ctx context.Context, userID uuid.UUID, input Input) (*models.UserAddress, error)
	Update(ctx context.Context, userID, id uuid.UUID, input Input) (*models.UserAddress, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	SetDefault(ctx context.Context, userID, id uuid.UUID) (*models.UserAddress, error)
	GetDefault(ctx context.Context, userID uuid.UUID) (*models.UserAddress, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.UserAddress, error)
}

type service struct {
	repo *Repository
	tx   txRunner
}

// NewService builds an address service backed by the provided stack.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// List returns the user's addresses. When no default survives earlier
// deletes, the newest address is promoted before returning.
func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing addresses")
	}
	if len(rows) == 0 {
		return rows, nil
	}
	for _, row := range rows {
		if row.IsDefault {
			return rows, nil
		}
	}

	// self-heal: promote the most recent
	promoted := rows[0]
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Promote(ctx, userID, promoted.ID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promoting default address")
	}
	rows[0].IsDefault = true
	return rows, nil
}

// Create saves a new address. The user's first address always becomes
// the default regardless of the flag in the input.
func (s *service) Create(ctx context.Context, userID uuid.UUID, input Input) (*models.UserAddress, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	row := rowFromInput(userID, input)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountByUser(ctx, userID)
		if err != nil {
			return err
		}
		if count == 0 {
			row.IsDefault = true
		} else if row.IsDefault {
			if err := repo.DemoteAll(ctx, userID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, row)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating address")
	}
	return row, nil
}

// Update rewrites an existing address.
func (s *service) Update(ctx context.Context, userID, id uuid.UUID, input Input) (*models.UserAddress, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var updated *models.UserAddress
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByID(ctx, userID, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
			}
			return err
		}
		if input.IsDefault && !row.IsDefault {
			if err := repo.DemoteAll(ctx, userID); err != nil {
				return err
			}
		}
		wasDefault := row.IsDefault
		applyInput(row, input)
		// an existing default cannot be silently demoted; use
		// SetDefault on another address instead
		if wasDefault {
			row.IsDefault = true
		}
		if err := repo.Save(ctx, row); err != nil {
			return err
		}
		updated = row
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating address")
	}
	return updated, nil
}

// Delete removes an address and, when it was the default, promotes the
// newest survivor.
func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByID(ctx, userID, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
			}
			return err
		}
		if _, err := repo.Delete(ctx, userID, id); err != nil {
			return err
		}
		if !row.IsDefault {
			return nil
		}
		survivors, err := repo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(survivors) == 0 {
			return nil
		}
		return repo.Promote(ctx, userID, survivors[0].ID)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting address")
	}
	return nil
}

// SetDefault promotes one address and demotes the rest.
func (s *service) SetDefault(ctx context.Context, userID, id uuid.UUID) (*models.UserAddress, error) {
	var row *models.UserAddress
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, userID, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
			}
			return err
		}
		if err := repo.DemoteAll(ctx, userID); err != nil {
			return err
		}
		if err := repo.Promote(ctx, userID, id); err != nil {
			return err
		}
		found.IsDefault = true
		row = found
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "setting default address")
	}
	return row, nil
}

// GetDefault returns the default address, or nil when the user has none.
func (s *service) GetDefault(ctx context.Context, userID uuid.UUID) (*models.UserAddress, error) {
	row, err := s.repo.FindDefault(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading default address")
	}
	return row, nil
}

// GetByID loads one address scoped to its owner.
func (s *service) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.UserAddress, error) {
	row, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading address")
	}
	return row, nil
}

func validateInput(input Input) error {
	missing := []string{}
	if strings.TrimSpace(input.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(input.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(input.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(input.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(input.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(input.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "address fields missing").
			WithDetails(map[string]any{"fields": missing})
	}
	return nil
}

func rowFromInput(userID uuid.UUID, input Input) *models.UserAddress {
	row := &models.UserAddress{
		UserID:    userID,
		IsDefault: input.IsDefault,
	}
	applyInput(row, input)
	return row
}

func applyInput(row *models.UserAddress, input Input) {
	row.FullName = strings.TrimSpace(input.FullName)
	row.Phone = strings.TrimSpace(input.Phone)
	row.Line1 = strings.TrimSpace(input.Line1)
	row.Line2 = input.Line2
	row.City = strings.TrimSpace(input.City)
	row.State = strings.TrimSpace(input.State)
	row.PostalCode = strings.TrimSpace(input.PostalCode)
	country := strings.TrimSpace(input.Country)
	if country == "" {
		country = "IN"
	}
	row.Country = country
	row.IsDefault = input.IsDefault
}
