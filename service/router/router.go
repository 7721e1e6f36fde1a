package router

import (
	handlers "github.com/antinvestor/mpesa-api/service/handler"
	"github.com/gorilla/mux"
)

func NewRouter(js *handlers.JobServer) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	// Health check endpoint
	router.HandleFunc("/health", handlers.HealthHandler).Methods("GET")
	// Push endpoints
	router.HandleFunc("/payments/stkpush", js.InitiateStkPush).Methods("POST")
	router.HandleFunc("/payments/{checkoutRequestID}", js.GetIntentStatus).Methods("GET")
	// Callback endpoint
	router.HandleFunc("/payments/callback", js.HandleStkCallback).Methods("POST")
	return router
}
