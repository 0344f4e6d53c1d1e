package model

import "time"

// ItemVariant tags which kind of catalog entry a MarketItem is.
type ItemVariant string

const (
	VariantIcon       ItemVariant = "icon"
	VariantTitle      ItemVariant = "title"
	VariantConsumable ItemVariant = "consumable"
	VariantProvider   ItemVariant = "provider"
)

// ConsumableKind names the perk a consumable grants. At most one market item
// may exist per kind.
type ConsumableKind string

const (
	KindInvitation ConsumableKind = "invitation"
	KindGift       ConsumableKind = "gift"
)

// ItemDetails is the variant-specific payload of a MarketItem. The set of
// implementations is closed: IconItem, TitleItem, ConsumableItem,
// ProviderItem, and UnknownItem for rows whose tag this build does not know.
type ItemDetails interface {
	Variant() ItemVariant
	isItemDetails()
}

// IconItem is a cosmetic avatar.
type IconItem struct {
	Icon string `json:"icon"` // asset reference
}

// TitleItem is a display title shown next to the username.
type TitleItem struct {
	Label string `json:"label"`
}

type ConsumableItem struct {
	Kind ConsumableKind `json:"kind"`
}

// ProviderItem unlocks an external content provider integration.
type ProviderItem struct {
	Provider string `json:"provider"`
}

// UnknownItem holds a stored variant tag that is not recognised.
type UnknownItem struct {
	Tag string `json:"tag"`
}

func (IconItem) Variant() ItemVariant       { return VariantIcon }
func (TitleItem) Variant() ItemVariant      { return VariantTitle }
func (ConsumableItem) Variant() ItemVariant { return VariantConsumable }
func (ProviderItem) Variant() ItemVariant   { return VariantProvider }
func (u UnknownItem) Variant() ItemVariant  { return ItemVariant(u.Tag) }

func (IconItem) isItemDetails()       {}
func (TitleItem) isItemDetails()      {}
func (ConsumableItem) isItemDetails() {}
func (ProviderItem) isItemDetails()   {}
func (UnknownItem) isItemDetails()    {}

// MarketItem is a purchasable catalog definition. Items are never deleted,
// only disabled.
type MarketItem struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"` // unique across all items
	Description string      `json:"description"`
	Price       int64       `json:"price"` // > 0
	Enabled     bool        `json:"enabled"`
	Tags        []string    `json:"tags"`
	Details     ItemDetails `json:"details"`
	CreatedBy   string      `json:"createdBy"`
	ModifiedBy  string      `json:"modifiedBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Variant returns the item's tag, or "" when no details are attached.
func (i *MarketItem) Variant() ItemVariant {
	if i.Details == nil {
		return ""
	}
	return i.Details.Variant()
}

// ConsumableKind returns the kind of a consumable item and false for every
// other variant.
func (i *MarketItem) ConsumableKind() (ConsumableKind, bool) {
	c, ok := i.Details.(ConsumableItem)
	if !ok {
		return "", false
	}
	return c.Kind, true
}
