package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for CreateOrderRequest to reject
	// duplicate item ids: each item appears in at most one line.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	seen := map[string]bool{}
	for _, l := range req.Lines {
		if seen[l.ItemID] {
			sl.ReportError(req.Lines, "lines", "Lines", "unique_items", l.ItemID)
			return
		}
		seen[l.ItemID] = true
	}
}
