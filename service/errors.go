package service

import "errors"

var ErrNotFound = errors.New("product not found")

// ValidationError reports input rejected before any persistence call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

const (
	msgRequiredFields = "Name, description, and price are required"
	msgInvalidPrice   = "Price must be a positive number"
	msgInvalidID      = "Invalid product ID"
	msgNameTooLong    = "Name must be at most 255 characters"
	msgInvalidData    = "Invalid product data"
)

// NewInvalidIDError is returned for ids that cannot name a product.
func NewInvalidIDError() error {
	return &ValidationError{Field: "id", Message: msgInvalidID}
}

// NewFieldTypeError is returned when a request field has the wrong JSON type.
func NewFieldTypeError(field string) error {
	if field == "price" {
		return &ValidationError{Field: field, Message: msgInvalidPrice}
	}
	return &ValidationError{Field: field, Message: msgRequiredFields}
}

// NewMissingFieldsError is returned for an empty request body.
func NewMissingFieldsError() error {
	return &ValidationError{Message: msgRequiredFields}
}
