package api

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tasknotes/internal/models"
	"github.com/starford/tasknotes/internal/noteservice"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []NoteListItem `json:"results" validate:"required"`
}

// ConvertRequest is the request body for switching a note's format.
type ConvertRequest struct {
	Format models.Format `json:"format" example:"both" validate:"required"`
}

// Validate validates the convert request.
func (r ConvertRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Format, validation.Required,
			validation.In(models.FormatText, models.FormatList, models.FormatBoth)),
	)
}

// ConvertResponse is returned after a format switch.
type ConvertResponse struct {
	Note  NoteDetail `json:"note"`
	Lossy bool       `json:"lossy" example:"false"`
}

// AddItemRequest is the request body for appending a checklist item.
type AddItemRequest struct {
	Text string `json:"text" example:"Buy milk" validate:"required"`
}

// Validate validates the add-item request.
func (r AddItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.By(notBlank)),
	)
}

// AddItemResponse is returned after a checklist item is appended.
type AddItemResponse struct {
	Note NoteDetail           `json:"note"`
	Item models.ChecklistItem `json:"item"`
}

// PatchItemRequest updates the text and/or completion of a checklist item.
type PatchItemRequest struct {
	Text      *string `json:"text,omitempty" example:"Buy oat milk"`
	Completed *bool   `json:"completed,omitempty" example:"true"`
}

// Validate validates the patch request.
func (r PatchItemRequest) Validate() error {
	if r.Text == nil && r.Completed == nil {
		return errors.New("text or completed is required")
	}
	return nil
}

// MoveItemRequest moves a checklist item to a new position.
type MoveItemRequest struct {
	Index *int `json:"index" example:"0" validate:"required"`
}

// Validate validates the move request.
func (r MoveItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Index, validation.NotNil),
	)
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}
