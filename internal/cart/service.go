package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	"github.com/rohanmalik/merakistore-backend/internal/identity"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
)

const (
	maxMutationRetries = 3
	versionRetryDelay  = 25 * time.Millisecond
)

var errVersionConflict = errors.New("cart version conflict")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindManyByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

// AddInput captures an add-to-cart request.
type AddInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Color     *string
	Quantity  int
}

// ChangeOptionsInput captures a variant/color switch for an existing line.
type ChangeOptionsInput struct {
	VariantID *uuid.UUID
	Color     *string
}

// Service exposes cart operations keyed by owner.
type Service interface {
	Get(ctx context.Context, owner identity.OwnerKey) (*View, error)
	Add(ctx context.Context, owner identity.OwnerKey, input AddInput) (*View, error)
	SetQuantity(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, quantity int) (*View, error)
	ChangeOptions(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, input ChangeOptionsInput) (*View, error)
	Remove(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID) (*View, error)
	Clear(ctx context.Context, owner identity.OwnerKey) (*View, error)
	SetSelection(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, selected bool) (*View, error)
	SetSelectAll(ctx context.Context, owner identity.OwnerKey, selected bool) (*View, error)
	MergeGuestCart(ctx context.Context, guest, user identity.OwnerKey) error
}

type service struct {
	repo     *Repository
	tx       txRunner
	products productLoader
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, tx: tx, products: products}, nil
}

// Get returns the cart enriched with live availability. A missing cart
// reads as an empty one.
func (s *service) Get(ctx context.Context, owner identity.OwnerKey) (*View, error) {
	cart, err := s.repo.FindByOwnerKey(ctx, owner.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &View{OwnerKey: owner.String(), Lines: []LineView{}, Totals: ComputeTotals(nil)}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	return s.buildView(ctx, cart)
}

// Add merges the requested option combination into the cart. Stock is
// deliberately not checked here; the shopper finds out at quantity
// edits and checkout, not while browsing.
func (s *service) Add(ctx context.Context, owner identity.OwnerKey, input AddInput) (*View, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	colorKey := catalog.NormalizeColorKey(input.Color)
	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	snap, err := catalog.Resolve(product, input.VariantID, colorKey)
	if err != nil {
		return nil, err
	}

	err = s.mutate(ctx, owner, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		if existing := findMergeLine(cart.Lines, snap.ProductID, snap.VariantID, snap.ColorKey, nil); existing != nil {
			existing.Quantity += input.Quantity
			applySnapshot(existing, snap)
			return repo.SaveLine(ctx, existing)
		}
		line := &models.CartLine{
			CartID:     cart.ID,
			ProductID:  snap.ProductID,
			VariantID:  snap.VariantID,
			ColorKey:   snap.ColorKey,
			ColorName:  snap.ColorName,
			Quantity:   input.Quantity,
			IsSelected: true,
		}
		applySnapshot(line, snap)
		return repo.CreateLine(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// SetQuantity replaces a line's quantity after revalidating live stock.
func (s *service) SetQuantity(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, quantity int) (*View, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	err := s.mutate(ctx, owner, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		line := findLine(cart.Lines, lineID)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		product, err := s.loadLiveProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		snap, err := catalog.Resolve(product, line.VariantID, line.ColorKey)
		if err != nil {
			// the stored combination went away since the line was
			// created, so this is a conflict, not a bad request
			return pkgerrors.New(pkgerrors.CodeConflict, "selected variant no longer exists")
		}
		if quantity > snap.Available {
			return pkgerrors.New(pkgerrors.CodeConflict, "requested quantity exceeds available stock").
				WithDetails(map[string]any{"available": snap.Available})
		}
		line.Quantity = quantity
		applySnapshot(line, snap)
		return repo.SaveLine(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// ChangeOptions moves a line onto a different variant/color. When the
// target combination already exists in the cart the two lines merge,
// and the combined quantity must fit live stock.
func (s *service) ChangeOptions(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, input ChangeOptionsInput) (*View, error) {
	colorKey := catalog.NormalizeColorKey(input.Color)

	err := s.mutate(ctx, owner, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		line := findLine(cart.Lines, lineID)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		product, err := s.loadLiveProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		snap, err := catalog.Resolve(product, input.VariantID, colorKey)
		if err != nil {
			return err
		}

		if target := findMergeLine(cart.Lines, snap.ProductID, snap.VariantID, snap.ColorKey, &line.ID); target != nil {
			combined := target.Quantity + line.Quantity
			if combined > snap.Available {
				return pkgerrors.New(pkgerrors.CodeConflict, "combined quantity exceeds available stock").
					WithDetails(map[string]any{"available": snap.Available})
			}
			target.Quantity = combined
			applySnapshot(target, snap)
			if err := repo.SaveLine(ctx, target); err != nil {
				return err
			}
			return repo.DeleteLine(ctx, cart.ID, line.ID)
		}

		if line.Quantity > snap.Available {
			return pkgerrors.New(pkgerrors.CodeConflict, "requested quantity exceeds available stock").
				WithDetails(map[string]any{"available": snap.Available})
		}
		line.VariantID = snap.VariantID
		line.ColorKey = snap.ColorKey
		line.ColorName = snap.ColorName
		applySnapshot(line, snap)
		return repo.SaveLine(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// Remove deletes one line from the cart.
func (s *service) Remove(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID) (*View, error) {
	err := s.mutate(ctx, owner, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		if findLine(cart.Lines, lineID) == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		return repo.DeleteLine(ctx, cart.ID, lineID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// Clear empties the cart.
func (s *service) Clear(ctx context.Context, owner identity.OwnerKey) (*View, error) {
	err := s.mutate(ctx, owner, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		return repo.DeleteAllLines(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// SetSelection flips the checkout-selection flag on one line.
func (s *service) SetSelection(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, selected bool) (*View, error) {
	err := s.mutate(ctx, owner, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		updated, err := repo.UpdateLineSelection(ctx, cart.ID, lineID, selected)
		if err != nil {
			return err
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// SetSelectAll flips the selection flag on every line.
func (s *service) SetSelectAll(ctx context.Context, owner identity.OwnerKey, selected bool) (*View, error) {
	err := s.mutate(ctx, owner, func(ctx context.Context, repo *Repository, cart *models.Cart) error {
		return repo.UpdateAllSelection(ctx, cart.ID, selected)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// MergeGuestCart folds a guest cart into the user's cart after login,
// using the same merge rule as Add, then deletes the guest cart.
func (s *service) MergeGuestCart(ctx context.Context, guest, user identity.OwnerKey) error {
	if !guest.IsGuest() || !user.IsUser() {
		return pkgerrors.New(pkgerrors.CodeValidation, "merge requires a guest source and a user target")
	}

	guestCart, err := s.repo.FindByOwnerKey(ctx, guest.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading guest cart")
	}
	if len(guestCart.Lines) == 0 {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).DeleteCart(ctx, guestCart.ID)
		})
	}

	productIDs := make([]uuid.UUID, 0, len(guestCart.Lines))
	for _, line := range guestCart.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := s.products.FindManyByIDs(ctx, productIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products for merge")
	}

	return s.mutate(ctx, user, func(ctx context.Context, repo *Repository, userCart *models.Cart) error {
		for i := range guestCart.Lines {
			guestLine := guestCart.Lines[i]
			snap := snapshotFromLine(&guestLine)
			// refresh from the live product when it still resolves;
			// otherwise the guest snapshot carries over
			if product, ok := products[guestLine.ProductID]; ok {
				if fresh, resolveErr := catalog.Resolve(product, guestLine.VariantID, guestLine.ColorKey); resolveErr == nil {
					snap = fresh
				}
			}
			if existing := findMergeLine(userCart.Lines, guestLine.ProductID, guestLine.VariantID, guestLine.ColorKey, nil); existing != nil {
				existing.Quantity += guestLine.Quantity
				applySnapshot(existing, snap)
				if err := repo.SaveLine(ctx, existing); err != nil {
					return err
				}
				continue
			}
			line := &models.CartLine{
				CartID:     userCart.ID,
				ProductID:  guestLine.ProductID,
				VariantID:  guestLine.VariantID,
				ColorKey:   guestLine.ColorKey,
				ColorName:  snap.ColorName,
				Quantity:   guestLine.Quantity,
				IsSelected: guestLine.IsSelected,
			}
			applySnapshot(line, snap)
			if err := repo.CreateLine(ctx, line); err != nil {
				return err
			}
		}
		return repo.DeleteCart(ctx, guestCart.ID)
	})
}

// mutate runs fn inside a transaction guarded by the cart version,
// retrying a bounded number of times when a concurrent writer wins.
func (s *service) mutate(ctx context.Context, owner identity.OwnerKey, fn func(ctx context.Context, repo *Repository, cart *models.Cart) error) error {
	backoff := retry.WithMaxRetries(maxMutationRetries, retry.NewConstant(versionRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			cart, err := repo.GetOrCreate(ctx, owner.String())
			if err != nil {
				return err
			}
			if err := fn(ctx, repo, cart); err != nil {
				return err
			}
			bumped, err := repo.BumpVersion(ctx, cart.ID, cart.Version)
			if err != nil {
				return err
			}
			if !bumped {
				return errVersionConflict
			}
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// loadLiveProduct re-fetches a product to revalidate an existing line.
// A product that vanished or was deactivated since the line was created
// is a conflict on the line, unlike Add where it is the caller's error.
func (s *service) loadLiveProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available")
	}
	return product, nil
}

func (s *service) buildView(ctx context.Context, cart *models.Cart) (*View, error) {
	productIDs := make([]uuid.UUID, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := s.products.FindManyByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart products")
	}

	view := &View{
		ID:       cart.ID,
		OwnerKey: cart.OwnerKey,
		Lines:    make([]LineView, 0, len(cart.Lines)),
		Totals:   ComputeTotals(cart.Lines),
	}
	for _, line := range cart.Lines {
		available := 0
		if product, ok := products[line.ProductID]; ok {
			if snap, resolveErr := catalog.Resolve(product, line.VariantID, line.ColorKey); resolveErr == nil {
				available = snap.Available
			}
		}
		view.Lines = append(view.Lines, LineView{
			ID:         line.ID,
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			ColorKey:   line.ColorKey,
			ColorName:  line.ColorName,
			Title:      line.TitleSnapshot,
			ImageURL:   line.ImageURL,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			MRP:        line.MRP,
			LineTotal:  line.UnitPrice.Mul(decimalFromInt(line.Quantity)),
			IsSelected: line.IsSelected,
			Available:  available,
			InStock:    available >= line.Quantity,
		})
	}
	return view, nil
}

func applySnapshot(line *models.CartLine, snap *catalog.Snapshot) {
	line.UnitPrice = snap.UnitPrice
	line.MRP = snap.MRP
	line.TitleSnapshot = snap.Title
	line.ImageURL = snap.ImageURL
	if snap.ColorName != nil {
		line.ColorName = snap.ColorName
	}
}

func snapshotFromLine(line *models.CartLine) *catalog.Snapshot {
	return &catalog.Snapshot{
		ProductID: line.ProductID,
		VariantID: line.VariantID,
		ColorKey:  line.ColorKey,
		ColorName: line.ColorName,
		Title:     line.TitleSnapshot,
		ImageURL:  line.ImageURL,
		UnitPrice: line.UnitPrice,
		MRP:       line.MRP,
	}
}

func findLine(lines []models.CartLine, id uuid.UUID) *models.CartLine {
	for i := range lines {
		if lines[i].ID == id {
			return &lines[i]
		}
	}
	return nil
}

func findMergeLine(lines []models.CartLine, productID uuid.UUID, variantID *uuid.UUID, colorKey *string, exclude *uuid.UUID) *models.CartLine {
	for i := range lines {
		line := &lines[i]
		if exclude != nil && line.ID == *exclude {
			continue
		}
		if line.ProductID != productID {
			continue
		}
		if !uuidPtrEqual(line.VariantID, variantID) {
			continue
		}
		if !strPtrEqual(line.ColorKey, colorKey) {
			continue
		}
		return line
	}
	return nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func decimalFromInt(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}
