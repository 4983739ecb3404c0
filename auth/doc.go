// Package auth protects the admin API with HMAC-signed JWT bearer tokens.
//
// The middleware in server/middleware depends only on TokenValidator;
// Service is the JWT implementation:
//
//	svc, err := auth.NewService(cfg)
//	token, err := svc.Generate("ops", "admin")
//	claims, err := svc.ValidateToken(token)
package auth
