package model

// PropertyInput represents a property description submitted for valuation
type PropertyInput struct {
	PropertyDescription string  `json:"propertyDescription"`
	Acreage             float64 `json:"acreage"`
	Location            string  `json:"location"`
	Irrigated           bool    `json:"irrigated"`
	Tillable            bool    `json:"tillable"`
	CropType            string  `json:"cropType,omitempty"`
}

// Validate checks the input against the submission constraints and returns
// a ValidationError listing every violated field, or nil when the input is
// acceptable. Booleans default to false when absent from the request body,
// which json decoding already gives us for free.
func (p *PropertyInput) Validate() *ValidationError {
	var fieldErrors []FieldError

	if len(p.PropertyDescription) < 10 {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   "propertyDescription",
			Message: "Property description must be at least 10 characters",
		})
	}
	if p.Acreage < 0.1 {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   "acreage",
			Message: "Acreage must be greater than 0",
		})
	}
	if len(p.Location) < 2 {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   "location",
			Message: "Location is required",
		})
	}

	if len(fieldErrors) > 0 {
		return &ValidationError{Errors: fieldErrors}
	}
	return nil
}

// Features derives the ordered feature labels from the input flags
func (p *PropertyInput) Features() []string {
	features := []string{}
	if p.Irrigated {
		features = append(features, "Irrigated")
	} else {
		features = append(features, "Dryland")
	}
	if p.Tillable {
		features = append(features, "Tillable")
	}
	if p.CropType != "" {
		features = append(features, p.CropType)
	}
	return features
}
