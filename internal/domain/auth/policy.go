package auth

import (
	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when an operation needs an identity and
	// the request carries none.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller lacks the capability an
	// operation requires.
	ErrForbidden = errors.New("insufficient permissions")
)

// Scopes granted to API keys.
const (
	ScopeCart        = "cart"
	ScopeOrdersRead  = "orders:read"
	ScopeOrdersWrite = "orders:write"
	ScopeOrdersAdmin = "orders:admin"
	ScopeCatalog     = "catalog:admin"
	ScopeAdmin       = "admin"
)

// Operation names an action exposed by the API.
type Operation string

// Operations evaluated by the Policy before dispatch.
const (
	OpCartView        Operation = "cart.view"
	OpCartAddItem     Operation = "cart.add_item"
	OpCartUpdateItem  Operation = "cart.update_item"
	OpCartRemoveItem  Operation = "cart.remove_item"
	OpCartClear       Operation = "cart.clear"
	OpOrderCreate     Operation = "order.create"
	OpOrderGet        Operation = "order.get"
	OpOrderList       Operation = "order.list"
	OpOrderUpdate     Operation = "order.update"
	OpOrderSetStatus  Operation = "order.set_status"
	OpOrderStats      Operation = "order.stats"
	OpCatalogRead     Operation = "catalog.read"
	OpCatalogStock    Operation = "catalog.adjust_stock"
	OpCatalogLowStock Operation = "catalog.low_stock"
	OpCatalogAlerts   Operation = "catalog.alerts"
	OpMediaList       Operation = "media.list"
	OpMediaUpload     Operation = "media.upload"
	OpMediaDelete     Operation = "media.delete"
)

// Rule is the requirement attached to one operation. A zero Rule means the
// operation is public.
type Rule struct {
	// Scope is the capability the caller must hold. Empty means any
	// authenticated caller passes, unless the rule is also Public.
	Scope string
	// Customer requires the principal to be bound to a customer.
	Customer bool
	// Public allows anonymous callers.
	Public bool
}

// Policy maps each operation to its Rule.
type Policy map[Operation]Rule

// DefaultPolicy is the authorization table used by the API server.
func DefaultPolicy() Policy {
	return Policy{
		OpCartView:        {Scope: ScopeCart, Customer: true},
		OpCartAddItem:     {Scope: ScopeCart, Customer: true},
		OpCartUpdateItem:  {Scope: ScopeCart, Customer: true},
		OpCartRemoveItem:  {Scope: ScopeCart, Customer: true},
		OpCartClear:       {Scope: ScopeCart, Customer: true},
		OpOrderCreate:     {Scope: ScopeOrdersWrite, Customer: true},
		OpOrderGet:        {Scope: ScopeOrdersRead},
		OpOrderList:       {Scope: ScopeOrdersRead},
		OpOrderUpdate:     {Scope: ScopeOrdersAdmin},
		OpOrderSetStatus:  {Scope: ScopeOrdersAdmin},
		OpOrderStats:      {Scope: ScopeOrdersAdmin},
		OpCatalogRead:     {Public: true},
		OpCatalogStock:    {Scope: ScopeCatalog},
		OpCatalogLowStock: {Scope: ScopeCatalog},
		OpCatalogAlerts:   {Scope: ScopeCatalog},
		OpMediaList:       {Public: true},
		OpMediaUpload:     {Scope: ScopeCatalog},
		OpMediaDelete:     {Scope: ScopeCatalog},
	}
}

// Authorize checks p against the rule registered for op. Operations missing
// from the table are denied.
func (pol Policy) Authorize(p *Principal, op Operation) error {
	rule, ok := pol[op]
	if !ok {
		return errors.Wrapf(ErrForbidden, "operation %q", op)
	}
	if rule.Public {
		return nil
	}
	if p == nil {
		return ErrUnauthenticated
	}
	if rule.Customer && p.CustomerID == "" {
		return ErrUnauthenticated
	}
	if rule.Scope != "" && !p.Has(rule.Scope) {
		return errors.Wrapf(ErrForbidden, "operation %q requires scope %q", op, rule.Scope)
	}
	return nil
}
