package service

import (
	"github.com/sakif/recshare/internal/model"
)

// Default preset prices.
const (
	DefaultInvitationPrice int64 = 50
	DefaultGiftPrice       int64 = 20
)

// CannedPreset is a fixed-price purchase of a consumable kind that callers
// can buy without naming a catalog item.
type CannedPreset struct {
	Kind        model.ConsumableKind
	Title       string
	Description string
	Price       int64
}

// Presets are the canned purchases known to the engine, keyed by kind.
type Presets map[model.ConsumableKind]CannedPreset

// DefaultPresets returns the invitation and gift presets at the given
// prices. Non-positive prices fall back to the defaults.
func DefaultPresets(invitationPrice, giftPrice int64) Presets {
	if invitationPrice <= 0 {
		invitationPrice = DefaultInvitationPrice
	}
	if giftPrice <= 0 {
		giftPrice = DefaultGiftPrice
	}
	return Presets{
		model.KindInvitation: {
			Kind:        model.KindInvitation,
			Title:       "Invitation",
			Description: "Lets you mint one account-creation token for a friend.",
			Price:       invitationPrice,
		},
		model.KindGift: {
			Kind:        model.KindGift,
			Title:       "Gift",
			Description: "A small present to hand to another member.",
			Price:       giftPrice,
		},
	}
}

// List returns the presets in a stable order: invitation, then gift, then
// any others.
func (p Presets) List() []CannedPreset {
	out := make([]CannedPreset, 0, len(p))
	for _, k := range []model.ConsumableKind{model.KindInvitation, model.KindGift} {
		if preset, ok := p[k]; ok {
			out = append(out, preset)
		}
	}
	for k, preset := range p {
		if k != model.KindInvitation && k != model.KindGift {
			out = append(out, preset)
		}
	}
	return out
}
