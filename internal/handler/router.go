package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/middleware"
)

// NewRouter wires every route. Protected routes require a token.
func NewRouter(h *Handler, tokens middleware.TokenParser, corsOrigins []string, log *logrus.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log), middleware.Recoverer(log))

	// Public routes
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/logout", h.Logout).Methods("POST")

	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(tokens, log))
	authRouter.HandleFunc("/dashboard", h.Dashboard).Methods("GET")
	authRouter.HandleFunc("/cobrancas", h.ListCharges).Methods("GET")
	authRouter.HandleFunc("/cobrancas", h.CreateCharge).Methods("POST")
	authRouter.HandleFunc("/cobrancas/{id:[0-9]+}", h.GetCharge).Methods("GET")
	authRouter.HandleFunc("/cobrancas/{id:[0-9]+}/parcelas", h.ListChargeInstallments).Methods("GET")
	authRouter.HandleFunc("/cobrancas/{id:[0-9]+}/parcelas", h.AddInstallment).Methods("POST")
	authRouter.HandleFunc("/parcelas", h.ListInstallments).Methods("GET")
	authRouter.HandleFunc("/parcelas/{id:[0-9]+}", h.GetInstallment).Methods("GET")
	authRouter.HandleFunc("/parcelas/{id:[0-9]+}", h.UpdateInstallment).Methods("PUT")
	authRouter.HandleFunc("/parcelas/{id:[0-9]+}", h.DeleteInstallment).Methods("DELETE")
	authRouter.HandleFunc("/parcelas/{id:[0-9]+}/pay", h.PayInstallment).Methods("POST")

	return middleware.CORS(corsOrigins)(r)
}
