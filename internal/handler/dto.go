package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
	"github.com/sakif/recshare/internal/service"
)

// Wire format of a market item. The variant travels as a tag next to its
// payload:
//
//	{"title": "Crown", "price": 30, "variant": "icon", "details": {"icon": "crown.png"}}
type itemRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       int64             `json:"price"`
	Enabled     *bool             `json:"enabled"`
	Tags        []string          `json:"tags"`
	Variant     model.ItemVariant `json:"variant"`
	Details     json.RawMessage   `json:"details"`
}

func (req itemRequest) toInput() (service.ItemInput, error) {
	details, err := decodeItemDetails(req.Variant, req.Details)
	if err != nil {
		return service.ItemInput{}, err
	}
	return service.ItemInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Enabled:     req.Enabled,
		Tags:        req.Tags,
		Details:     details,
	}, nil
}

func decodeItemDetails(variant model.ItemVariant, raw json.RawMessage) (model.ItemDetails, error) {
	switch variant {
	case "":
		return nil, nil
	case model.VariantIcon:
		return decodeAs[model.IconItem](raw)
	case model.VariantTitle:
		return decodeAs[model.TitleItem](raw)
	case model.VariantConsumable:
		return decodeAs[model.ConsumableItem](raw)
	case model.VariantProvider:
		return decodeAs[model.ProviderItem](raw)
	default:
		// The service rejects it as an unsupported variant.
		return model.UnknownItem{Tag: string(variant)}, nil
	}
}

func decodeAs[T model.ItemDetails](raw json.RawMessage) (model.ItemDetails, error) {
	var d T
	if err := unmarshalDetails(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func unmarshalDetails(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperror.ValidationFailed("details", fmt.Sprintf("invalid details: %v", err))
	}
	return nil
}

type itemResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       int64             `json:"price"`
	Enabled     bool              `json:"enabled"`
	Tags        []string          `json:"tags"`
	Variant     model.ItemVariant `json:"variant"`
	Details     model.ItemDetails `json:"details"`
	CreatedBy   string            `json:"createdBy"`
	ModifiedBy  string            `json:"modifiedBy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func newItemResponse(item *model.MarketItem) itemResponse {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return itemResponse{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		Enabled:     item.Enabled,
		Tags:        tags,
		Variant:     item.Variant(),
		Details:     item.Details,
		CreatedBy:   item.CreatedBy,
		ModifiedBy:  item.ModifiedBy,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

type purchaseResponse struct {
	ID        string                `json:"id"`
	UserID    string                `json:"userId"`
	ItemID    string                `json:"itemId"`
	ItemTitle string                `json:"itemTitle"`
	Quantity  int64                 `json:"quantity"`
	Payment   model.PaymentDetails  `json:"payment"`
	Variant   model.PurchaseVariant `json:"variant"`
	Details   model.PurchaseDetails `json:"details"`
	Version   int64                 `json:"version"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

func newPurchaseResponse(p *model.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		ItemID:    p.ItemID,
		ItemTitle: p.ItemTitle,
		Quantity:  p.Quantity,
		Payment:   p.Payment,
		Variant:   p.Variant(),
		Details:   p.Details,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// mapPage converts the items of a repository page, keeping its counters.
func mapPage[T, R any](p repository.Page[T], fn func(*T) R) repository.Page[R] {
	out := make([]R, len(p.Items))
	for i := range p.Items {
		out[i] = fn(&p.Items[i])
	}
	return repository.Page[R]{
		Items:      out,
		Total:      p.Total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: p.TotalPages,
	}
}

type buyResponse struct {
	Purchase purchaseResponse `json:"purchase"`
	Charged  int64            `json:"charged"`
	Balance  int64            `json:"balance"`
}

func newBuyResponse(res *service.BuyResult) buyResponse {
	return buyResponse{
		Purchase: newPurchaseResponse(res.Purchase),
		Charged:  res.Charged,
		Balance:  res.Balance,
	}
}

type redeemResponse struct {
	Purchase purchaseResponse `json:"purchase"`
	User     *model.User      `json:"user"`
}
