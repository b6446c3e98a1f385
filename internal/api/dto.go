package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/basket/internal/kpi"
	"github.com/starford/basket/internal/models"
)

// ItemInput is one line of a list being created.
type ItemInput struct {
	CanonicalID int64   `json:"canonical_id" example:"1042" validate:"required"`
	ProductName string  `json:"product_name" example:"Whole milk 1L"`
	Quantity    float64 `json:"quantity" example:"2" validate:"required"`
}

// Validate validates the item.
func (i ItemInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.CanonicalID, validation.Required, validation.Min(int64(1))),
		validation.Field(&i.ProductName, validation.Length(0, 200)),
		validation.Field(&i.Quantity, validation.Required, validation.Min(0.0).Exclusive()),
	)
}

// CreateListRequest is the request body for creating a list.
type CreateListRequest struct {
	Name      string      `json:"name" example:"Weekly groceries" validate:"required"`
	MaxStores int         `json:"max_stores" example:"2"`
	Items     []ItemInput `json:"items"`
}

// Validate validates the request.
func (r CreateListRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.MaxStores, validation.Min(0), validation.Max(models.MaxStores)),
		validation.Field(&r.Items),
	)
}

// UpdateListRequest patches list-level fields. Absent fields are left alone.
type UpdateListRequest struct {
	Name         *string `json:"name,omitempty" example:"Party"`
	MaxStores    *int    `json:"max_stores,omitempty" example:"3"`
	Status       *string `json:"status,omitempty" example:"closed" enums:"draft,closed,optimized"`
	ClearChecked bool    `json:"clear_checked,omitempty"`
}

// Validate validates the request.
func (r UpdateListRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.MaxStores, validation.Min(models.MinStores), validation.Max(models.MaxStores)),
		validation.Field(&r.Status, validation.In(
			string(models.StatusDraft), string(models.StatusClosed), string(models.StatusOptimized))),
	)
}

// UpdateItemRequest patches one item. Absent fields are left alone.
type UpdateItemRequest struct {
	Quantity    *float64 `json:"quantity,omitempty" example:"3"`
	IsChecked   *bool    `json:"is_checked,omitempty"`
	ProductName *string  `json:"product_name,omitempty" example:"Skimmed milk 1L"`
}

// Validate validates the request.
func (r UpdateItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Quantity, validation.Min(0.0).Exclusive()),
		validation.Field(&r.ProductName, validation.Length(0, 200)),
	)
}

// ListDetail is the full list response type (aliased from the domain layer).
type ListDetail = models.ListDraft

// ListSummary is a lightweight item in a listing (aliased from the domain layer).
type ListSummary = models.ListSummary

// ListsResponse wraps list summaries.
type ListsResponse struct {
	Lists []ListSummary `json:"lists" validate:"required"`
	Total int           `json:"total" example:"3" validate:"required"`
}

// KPIResponse is the derived metrics for a list (aliased from the domain layer).
type KPIResponse = kpi.KPIs
