package giftcards

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Registry owns the gift card templates. It is not safe for concurrent use;
// Service serializes access to it.
type Registry struct {
	admin     uuid.UUID
	templates []Template
	now       func() time.Time
}

// NewRegistry creates an empty registry administered by admin.
func NewRegistry(admin uuid.UUID) *Registry {
	return &Registry{admin: admin, now: time.Now}
}

// Admin returns the shop administrator.
func (r *Registry) Admin() uuid.UUID {
	return r.admin
}

// IsAdmin reports whether caller is the shop administrator.
func (r *Registry) IsAdmin(caller uuid.UUID) bool {
	return caller != uuid.Nil && caller == r.admin
}

// Len returns the number of templates ever created.
func (r *Registry) Len() int {
	return len(r.templates)
}

// Create registers a new active template.
func (r *Registry) Create(caller uuid.UUID, initialSupply uint64, activationDelayMonths, expiryYears uint32, faceValueCents, listPriceCents int64) (*Template, error) {
	change, err := r.planCreate(caller, initialSupply, activationDelayMonths, expiryYears, faceValueCents, listPriceCents, r.now())
	if err != nil {
		return nil, err
	}
	if err := r.insert(change.Template); err != nil {
		return nil, err
	}
	t := change.Template
	return &t, nil
}

// SetActive toggles whether a template can be purchased.
func (r *Registry) SetActive(caller uuid.UUID, id uint64, active bool) error {
	change, err := r.planSetActive(caller, id, active)
	if err != nil {
		return err
	}
	return r.setActive(change.TemplateID, change.Active)
}

// SetRemainingSupply overwrites the remaining supply without any bound check.
func (r *Registry) SetRemainingSupply(caller uuid.UUID, id, value uint64) error {
	change, err := r.planSetRemainingSupply(caller, id, value)
	if err != nil {
		return err
	}
	return r.setRemainingSupply(change.TemplateID, change.Value)
}

// SetInitialSupply overwrites the initial supply. The remaining supply is untouched.
func (r *Registry) SetInitialSupply(caller uuid.UUID, id, value uint64) error {
	change, err := r.planSetInitialSupply(caller, id, value)
	if err != nil {
		return err
	}
	return r.setInitialSupply(change.TemplateID, change.Value)
}

// Get returns a copy of the template.
func (r *Registry) Get(id uint64) (*Template, error) {
	t, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	copied := *t
	return &copied, nil
}

// ListActive returns the purchasable templates in ascending id order.
func (r *Registry) ListActive() []Template {
	active := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		if t.Active {
			active = append(active, t)
		}
	}
	return active
}

// List returns every template in ascending id order.
func (r *Registry) List() []Template {
	all := make([]Template, len(r.templates))
	copy(all, r.templates)
	return all
}

func (r *Registry) authorize(caller uuid.UUID) error {
	if !r.IsAdmin(caller) {
		return fmt.Errorf("%w: %s is not the shop admin", ErrUnauthorized, caller)
	}
	return nil
}

func (r *Registry) lookup(id uint64) (*Template, error) {
	if id >= uint64(len(r.templates)) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return &r.templates[id], nil
}

// ========================================
// PLANNING
// ========================================

func (r *Registry) planCreate(caller uuid.UUID, initialSupply uint64, activationDelayMonths, expiryYears uint32, faceValueCents, listPriceCents int64, now time.Time) (TemplateCreated, error) {
	if err := r.authorize(caller); err != nil {
		return TemplateCreated{}, err
	}
	if faceValueCents < 0 || listPriceCents < 0 {
		return TemplateCreated{}, fmt.Errorf("%w: face value and list price must not be negative", ErrInvalidAmount)
	}

	return TemplateCreated{Template: Template{
		ID:                    uint64(len(r.templates)),
		InitialSupply:         initialSupply,
		RemainingSupply:       initialSupply,
		FaceValueCents:        faceValueCents,
		ListPriceCents:        listPriceCents,
		ActivationDelayMonths: activationDelayMonths,
		ExpiryYears:           expiryYears,
		Active:                true,
		CreatedAt:             now.UTC(),
	}}, nil
}

func (r *Registry) planSetActive(caller uuid.UUID, id uint64, active bool) (TemplateActiveSet, error) {
	if err := r.authorize(caller); err != nil {
		return TemplateActiveSet{}, err
	}
	if _, err := r.lookup(id); err != nil {
		return TemplateActiveSet{}, err
	}
	return TemplateActiveSet{TemplateID: id, Active: active}, nil
}

func (r *Registry) planSetRemainingSupply(caller uuid.UUID, id, value uint64) (TemplateRemainingSupplySet, error) {
	if err := r.authorize(caller); err != nil {
		return TemplateRemainingSupplySet{}, err
	}
	if _, err := r.lookup(id); err != nil {
		return TemplateRemainingSupplySet{}, err
	}
	return TemplateRemainingSupplySet{TemplateID: id, Value: value}, nil
}

func (r *Registry) planSetInitialSupply(caller uuid.UUID, id, value uint64) (TemplateInitialSupplySet, error) {
	if err := r.authorize(caller); err != nil {
		return TemplateInitialSupplySet{}, err
	}
	if _, err := r.lookup(id); err != nil {
		return TemplateInitialSupplySet{}, err
	}
	return TemplateInitialSupplySet{TemplateID: id, Value: value}, nil
}

// ========================================
// APPLYING
// ========================================

func (r *Registry) insert(t Template) error {
	if t.ID != uint64(len(r.templates)) {
		return fmt.Errorf("%w: template id %d, expected %d", ErrCorruptJournal, t.ID, len(r.templates))
	}
	r.templates = append(r.templates, t)
	return nil
}

func (r *Registry) setActive(id uint64, active bool) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	t.Active = active
	return nil
}

func (r *Registry) setRemainingSupply(id, value uint64) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	t.RemainingSupply = value
	return nil
}

func (r *Registry) setInitialSupply(id, value uint64) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	t.InitialSupply = value
	return nil
}

// decrementOnMint is the only path that lowers the remaining supply on purchase.
func (r *Registry) decrementOnMint(id, quantity uint64) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	if quantity > t.RemainingSupply {
		return fmt.Errorf("%w: template %d has %d left, requested %d", ErrSupplyExhausted, id, t.RemainingSupply, quantity)
	}
	t.RemainingSupply -= quantity
	return nil
}
