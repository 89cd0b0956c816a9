package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	sessionName   = "expense_tracker"
	sessionUserID = "user_id"
)

// SessionConfig configures the session cookie
type SessionConfig struct {
	Key    []byte        // HMAC key for signing the cookie
	Secure bool          // send the cookie over HTTPS only
	MaxAge time.Duration // cookie lifetime
}

// Server handles HTTP requests for the expense tracker
type Server struct {
	service  *Service
	sessions sessions.Store
	mux      *http.ServeMux
	handler  http.Handler
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, cfg SessionConfig) *Server {
	return NewServerWithMux(service, newCookieStore(cfg), http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom session store and mux for testing
func NewServerWithMux(service *Service, store sessions.Store, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		sessions: store,
		mux:      mux,
	}
	s.registerRoutes()
	s.handler = withRequestLogging(withSecurityHeaders(s.mux))
	return s
}

func newCookieStore(cfg SessionConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore(cfg.Key)
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// currentUserID reads the logged-in user from the session cookie
func (s *Server) currentUserID(r *http.Request) (int64, bool) {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return 0, false
	}
	id, ok := session.Values[sessionUserID].(int64)
	return id, ok && id > 0
}

// login stores the user in a fresh session
func (s *Server) login(w http.ResponseWriter, r *http.Request, userID int64) error {
	session, _ := s.sessions.Get(r, sessionName)
	session.Values[sessionUserID] = userID
	return session.Save(r, w)
}

// logout expires the session cookie
func (s *Server) logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.sessions.Get(r, sessionName)
	delete(session.Values, sessionUserID)
	if session.Options == nil {
		session.Options = &sessions.Options{Path: "/"}
	}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// requireUser rejects requests without a logged-in user
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.currentUserID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Not logged in")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/{file}", s.handleStatic)
	s.mux.HandleFunc("GET /healthz", handleHealth)

	// Accounts
	s.mux.HandleFunc("POST /api/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)
	s.mux.HandleFunc("POST /api/check-email", s.handleCheckEmail)
	s.mux.HandleFunc("POST /api/contact", s.handleContact)

	// Profile
	s.mux.HandleFunc("GET /api/profile", s.requireUser(s.handleGetProfile))
	s.mux.HandleFunc("POST /api/profile/details", s.requireUser(s.handleUpdateDetails))
	s.mux.HandleFunc("POST /api/profile/password", s.requireUser(s.handleChangePassword))
	s.mux.HandleFunc("GET /api/profile/photo", s.requireUser(s.handleGetPhoto))
	s.mux.HandleFunc("POST /api/profile/photo", s.requireUser(s.handleChangePhoto))

	// Expenses
	s.mux.HandleFunc("GET /api/expenses/{id}/receipt", s.requireUser(s.handleGetReceiptFile))
	s.mux.HandleFunc("POST /api/expenses/{id}", s.requireUser(s.handleEditExpense))
	s.mux.HandleFunc("DELETE /api/expenses/{id}", s.requireUser(s.handleDeleteExpense))
	s.mux.HandleFunc("GET /api/expenses", s.requireUser(s.handleListExpenses))
	s.mux.HandleFunc("POST /api/expenses", s.requireUser(s.handleAddExpense))
	s.mux.HandleFunc("POST /api/receipts/scan", s.requireUser(s.handleScanReceipt))

	// Summaries
	s.mux.HandleFunc("GET /api/dashboard/stats", s.requireUser(s.handleDashboardStats))
	s.mux.HandleFunc("GET /api/analytics", s.requireUser(s.handleAnalytics))
	s.mux.HandleFunc("GET /api/report", s.requireUser(s.handleReport))

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.handleIndex)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute, // large uploads from phones
		WriteTimeout:      5 * time.Minute, // OCR of multi-page PDFs
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
