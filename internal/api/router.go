package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/kataster/internal/metrics"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/registry"
	"github.com/erazemk/kataster/internal/workflow"
)

// Deps are the services the router dispatches to.
type Deps struct {
	DB            *sql.DB
	JWTSecret     string
	Registry      *registry.Registry
	Transfers     *workflow.Transfers
	Verifications *workflow.Verifications
	Metrics       *metrics.Metrics
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB}
	propertiesHandler := &PropertiesHandler{Registry: d.Registry}
	transfersHandler := &TransfersHandler{Transfers: d.Transfers}
	verificationsHandler := &VerificationsHandler{Verifications: d.Verifications}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireVerifier := RequireRole(model.RoleVerifier)

	// Public.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users: listing is open to every user so owners can pick a verifier,
	// everything else is admin only.
	mux.Handle("GET /api/users", authMW(http.HandlerFunc(usersHandler.List)))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Properties.
	mux.Handle("POST /api/properties", authMW(http.HandlerFunc(propertiesHandler.Create)))
	mux.Handle("GET /api/properties", authMW(http.HandlerFunc(propertiesHandler.List)))
	mux.Handle("GET /api/properties/{id}", authMW(http.HandlerFunc(propertiesHandler.Get)))
	mux.Handle("PUT /api/properties/{id}", authMW(http.HandlerFunc(propertiesHandler.Update)))
	mux.Handle("GET /api/properties/{id}/history", authMW(http.HandlerFunc(propertiesHandler.History)))
	mux.Handle("POST /api/properties/{id}/documents", authMW(http.HandlerFunc(propertiesHandler.AddDocuments)))
	mux.Handle("DELETE /api/properties/{id}/documents/{docID}", authMW(http.HandlerFunc(propertiesHandler.RemoveDocument)))
	mux.Handle("GET /api/stats", authMW(http.HandlerFunc(propertiesHandler.Stats)))

	// Verifications: decisions need verifier authority.
	mux.Handle("POST /api/verifications", authMW(http.HandlerFunc(verificationsHandler.Submit)))
	mux.Handle("GET /api/verifications/{id}", authMW(http.HandlerFunc(verificationsHandler.Get)))
	mux.Handle("PUT /api/verifications/{id}/approve", authMW(requireVerifier(http.HandlerFunc(verificationsHandler.Approve))))
	mux.Handle("GET /api/verifications/property/{propertyID}", authMW(http.HandlerFunc(verificationsHandler.Status)))

	// Transfers.
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Initiate)))
	mux.Handle("GET /api/transfers", authMW(http.HandlerFunc(transfersHandler.List)))
	mux.Handle("GET /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Get)))
	mux.Handle("PUT /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Update)))
	mux.Handle("PUT /api/transfers/{id}/approve", authMW(http.HandlerFunc(transfersHandler.Approve)))
	mux.Handle("POST /api/transfers/{id}/complete", authMW(http.HandlerFunc(transfersHandler.Complete)))
	mux.Handle("POST /api/transfers/{id}/reject", authMW(http.HandlerFunc(transfersHandler.Reject)))
	mux.Handle("POST /api/transfers/{id}/documents", authMW(http.HandlerFunc(transfersHandler.AddDocuments)))
	mux.Handle("DELETE /api/transfers/{id}/documents/{docID}", authMW(http.HandlerFunc(transfersHandler.RemoveDocument)))

	return mux
}
