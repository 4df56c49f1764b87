// Package validation wraps go-playground/validator for request bodies.
//
//	type CreateCaseRequest struct {
//		Title    string `json:"title" validate:"required,max=500"`
//		Priority string `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
//	}
//
//	var req CreateCaseRequest
//	if !validation.DecodeOrError(w, r, &req) {
//		return
//	}
//
// Failures are reported per JSON field name, for example
// {"error":"validation failed","details":{"title":"is required"}}. The
// "deptcode" tag checks department codes.
package validation
