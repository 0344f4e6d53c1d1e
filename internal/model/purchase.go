package model

import "time"

// PurchaseVariant mirrors ItemVariant on the ownership side.
type PurchaseVariant string

const (
	PurchaseIcon       PurchaseVariant = "icon_purchase"
	PurchaseTitle      PurchaseVariant = "title_purchase"
	PurchaseConsumable PurchaseVariant = "consumable_purchase"
	PurchaseProvider   PurchaseVariant = "provider_purchase"
)

// PurchaseDetails is the variant-specific part of a Purchase.
type PurchaseDetails interface {
	Variant() PurchaseVariant
	isPurchaseDetails()
}

// IconPurchase keeps a copy of the icon taken at purchase time, so later
// edits to the market item do not change what the owner redeems.
type IconPurchase struct {
	Icon string `json:"icon"`
}

type TitlePurchase struct {
	Label string `json:"label"`
}

type ConsumablePurchase struct {
	Kind   ConsumableKind `json:"kind"`
	Used   bool           `json:"used"`
	UsedAt *time.Time     `json:"usedAt,omitempty"`
}

type ProviderPurchase struct {
	Provider string `json:"provider"`
}

// UnknownPurchase holds a stored variant tag that is not recognised.
// Redeeming it fails with ErrInvalidPurchaseVariant.
type UnknownPurchase struct {
	Tag string `json:"tag"`
}

func (IconPurchase) Variant() PurchaseVariant       { return PurchaseIcon }
func (TitlePurchase) Variant() PurchaseVariant      { return PurchaseTitle }
func (ConsumablePurchase) Variant() PurchaseVariant { return PurchaseConsumable }
func (ProviderPurchase) Variant() PurchaseVariant   { return PurchaseProvider }
func (u UnknownPurchase) Variant() PurchaseVariant  { return PurchaseVariant(u.Tag) }

func (IconPurchase) isPurchaseDetails()       {}
func (TitlePurchase) isPurchaseDetails()      {}
func (ConsumablePurchase) isPurchaseDetails() {}
func (ProviderPurchase) isPurchaseDetails()   {}
func (UnknownPurchase) isPurchaseDetails()    {}

// PaymentDetails is written once, on the first purchase, and never changes.
type PaymentDetails struct {
	Price       int64     `json:"price"` // unit price locked at first purchase
	PurchasedAt time.Time `json:"purchasedAt"`
	Details     string    `json:"details,omitempty"`
}

// Purchase is the ownership record linking a user to a market item.
// There is at most one Purchase per (UserID, ItemID); buying again raises
// Quantity.
type Purchase struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	ItemID    string          `json:"itemId"`
	ItemTitle string          `json:"itemTitle"`
	Quantity  int64           `json:"quantity"`
	Payment   PaymentDetails  `json:"payment"`
	Details   PurchaseDetails `json:"details"`
	Version   int64           `json:"version"` // bumped on every save
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// IsNew reports whether the record has never been saved.
func (p *Purchase) IsNew() bool {
	return p.ID == ""
}

func (p *Purchase) Variant() PurchaseVariant {
	if p.Details == nil {
		return ""
	}
	return p.Details.Variant()
}
