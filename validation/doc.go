// Package validation checks admin request payloads.
//
// Struct tag validation goes through go-playground/validator and is what the
// HTTP handlers use:
//
//	type registerRequest struct {
//	    Name      string `json:"name" validate:"required,max=128"`
//	    Framework string `json:"framework" validate:"required,framework"`
//	}
//	if err := validation.Validate(req); err != nil { ... }
//
// Cross-field rules that tags cannot express (for example "exactly one of
// endpoint or region") use the programmatic Validator:
//
//	v := validation.New()
//	v.Required("path", cfg.Path).ExactlyOne("endpoint", cfg.Endpoint, "region", cfg.Region)
//	return v.Validate()
package validation
