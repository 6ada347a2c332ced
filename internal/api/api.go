package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/susu3304/recibot/internal/config"
	"github.com/susu3304/recibot/internal/db"
	"github.com/susu3304/recibot/internal/receipt"
	"golang.org/x/oauth2"
)

type API struct {
	router      *mux.Router
	db          *db.DB
	svc         *receipt.Service
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte
}

func New(cfg *config.Config, database *db.DB, svc *receipt.Service) *API {
	api := &API{
		router:    mux.NewRouter(),
		db:        database,
		svc:       svc,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/receipts/{session_id}", a.handleReceiptView).Methods("GET")
	protected.HandleFunc("/receipts/{session_id}/settlement", a.handleReceiptSettlement).Methods("GET")
	protected.HandleFunc("/channels/{channel_id}/receipt", a.handleChannelReceipt).Methods("GET")
}

func (a *API) Start() error {
	// Setup CORS - allow all origins for development, restrict in production
	// Note: When AllowedOrigins is "*", AllowCredentials must be false for security
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false, // Set to false for security when using wildcard origin
	}

	handler := cors.New(corsOptions).Handler(a.router)

	log.Printf("API server listening on http://%s", a.config.WebBind)
	return http.ListenAndServe(a.config.WebBind, handler)
}
