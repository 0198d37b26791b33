package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/ledger/internal/domain"
)

const (
	UnknownProductLabel = "Produk tidak dikenal"
	UnknownCashierLabel = "Kasir tidak dikenal"
)

// Resolution sources, reported alongside every resolved value.
const (
	SourceCatalog    = "catalog"
	SourceRecorded   = "recorded"
	SourceProductID  = "product_id"
	SourceUser       = "user"
	SourceLegacy     = "legacy"
	SourceCashierID  = "cashier_id"
	SourceUnknown    = "unknown"
	SourceCostPrice  = "cost_price"
	SourceLegacyCost = "legacy_cost"
	SourceEstimated  = "estimated"
	SourceNone       = "none"
)

// EstimatedCostRatio is the share of the selling price used as unit cost when
// the catalog has no usable cost for a product.
var EstimatedCostRatio = decimal.NewFromFloat(0.6)

type Catalog map[string]domain.Product

func NewCatalog(products []domain.Product) Catalog {
	catalog := make(Catalog, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		catalog[p.ID] = p
	}
	return catalog
}

type Directory map[string]domain.User

func NewDirectory(users []domain.User) Directory {
	dir := make(Directory, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		dir[u.ID] = u
	}
	return dir
}

type NameResolution struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Warning string `json:"warning,omitempty"`
}

func (r NameResolution) IsFallback() bool {
	return r.Source != SourceCatalog && r.Source != SourceUser
}

type CostResolution struct {
	Cost        int64  `json:"cost"`
	Source      string `json:"source"`
	IsEstimated bool   `json:"is_estimated"`
}

type productNameResolver func(item domain.LineItem, catalog Catalog) (NameResolution, bool)

type unitCostResolver func(item domain.LineItem, catalog Catalog) (CostResolution, bool)

type cashierNameResolver func(tx domain.SaleTransaction, users Directory) (NameResolution, bool)

var productNameChain = []productNameResolver{
	func(item domain.LineItem, catalog Catalog) (NameResolution, bool) {
		p, ok := catalog[item.ProductID]
		if !ok || !usableName(p.Name) {
			return NameResolution{}, false
		}
		return NameResolution{Name: strings.TrimSpace(p.Name), Source: SourceCatalog}, true
	},
	func(item domain.LineItem, _ Catalog) (NameResolution, bool) {
		if !usableName(item.Name) {
			return NameResolution{}, false
		}
		return NameResolution{
			Name:    strings.TrimSpace(item.Name),
			Source:  SourceRecorded,
			Warning: "product not in catalog, using name recorded on the sale",
		}, true
	},
	func(item domain.LineItem, _ Catalog) (NameResolution, bool) {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return NameResolution{}, false
		}
		return NameResolution{
			Name:    fmt.Sprintf("Produk #%s", id),
			Source:  SourceProductID,
			Warning: "product name unavailable, labelled by product id",
		}, true
	},
}

var unitCostChain = []unitCostResolver{
	func(item domain.LineItem, catalog Catalog) (CostResolution, bool) {
		p, ok := catalog[item.ProductID]
		if !ok || !p.CostPrice.Positive() {
			return CostResolution{}, false
		}
		return CostResolution{Cost: p.CostPrice.Int64(), Source: SourceCostPrice}, true
	},
	func(item domain.LineItem, catalog Catalog) (CostResolution, bool) {
		p, ok := catalog[item.ProductID]
		if !ok || !p.Cost.Positive() {
			return CostResolution{}, false
		}
		return CostResolution{Cost: p.Cost.Int64(), Source: SourceLegacyCost}, true
	},
	func(item domain.LineItem, _ Catalog) (CostResolution, bool) {
		if !item.UnitPrice.Positive() {
			return CostResolution{}, false
		}
		estimate := decimal.NewFromFloat(item.UnitPrice.Value).Mul(EstimatedCostRatio).Round(0)
		return CostResolution{Cost: estimate.IntPart(), Source: SourceEstimated, IsEstimated: true}, true
	},
}

var cashierNameChain = []cashierNameResolver{
	func(tx domain.SaleTransaction, users Directory) (NameResolution, bool) {
		u, ok := users[tx.CashierID]
		if !ok || !usableName(u.Name) {
			return NameResolution{}, false
		}
		return NameResolution{Name: strings.TrimSpace(u.Name), Source: SourceUser}, true
	},
	func(tx domain.SaleTransaction, _ Directory) (NameResolution, bool) {
		if !usableName(tx.CashierName) {
			return NameResolution{}, false
		}
		return NameResolution{
			Name:    strings.TrimSpace(tx.CashierName),
			Source:  SourceRecorded,
			Warning: "cashier not linked to a user, using name recorded on the sale",
		}, true
	},
	func(tx domain.SaleTransaction, _ Directory) (NameResolution, bool) {
		if !usableName(tx.Cashier) {
			return NameResolution{}, false
		}
		return NameResolution{
			Name:    strings.TrimSpace(tx.Cashier),
			Source:  SourceLegacy,
			Warning: "cashier taken from legacy cashier field",
		}, true
	},
	func(tx domain.SaleTransaction, _ Directory) (NameResolution, bool) {
		id := strings.TrimSpace(tx.CashierID)
		if id == "" {
			return NameResolution{}, false
		}
		return NameResolution{
			Name:    fmt.Sprintf("Kasir #%s", id),
			Source:  SourceCashierID,
			Warning: "cashier name unavailable, labelled by cashier id",
		}, true
	},
}

func ResolveProductName(item domain.LineItem, catalog Catalog) NameResolution {
	for _, resolve := range productNameChain {
		if r, ok := resolve(item, catalog); ok {
			return r
		}
	}
	return NameResolution{Name: UnknownProductLabel, Source: SourceUnknown, Warning: "product cannot be identified"}
}

// ResolveUnitCost never fails. Anything below the catalog tiers is flagged as
// estimated, including the zero fallback.
func ResolveUnitCost(item domain.LineItem, catalog Catalog) CostResolution {
	for _, resolve := range unitCostChain {
		if r, ok := resolve(item, catalog); ok {
			return r
		}
	}
	return CostResolution{Cost: 0, Source: SourceNone, IsEstimated: true}
}

func ResolveCashierName(tx domain.SaleTransaction, users Directory) NameResolution {
	for _, resolve := range cashierNameChain {
		if r, ok := resolve(tx, users); ok {
			return r
		}
	}
	return NameResolution{Name: UnknownCashierLabel, Source: SourceUnknown, Warning: "cashier cannot be identified"}
}

func usableName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != "undefined"
}
