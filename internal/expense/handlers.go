package expense

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const (
	maxReceiptSize = 50 << 20 // high-resolution phone photos and scanned PDFs
	maxPhotoSize   = 5 << 20
	maxJSONSize    = 1 << 20
)

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// apiResponse is the envelope for messages and errors
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Message: message})
}

func writeOK(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: true, Message: message})
}

// writeServiceError maps service errors to HTTP status codes
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, "New passwords do not match")
	default:
		slog.ErrorContext(r.Context(), "Request failed", "url", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a size-limited JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONSize)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// pathID parses the {id} path value
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid expense ID")
		return 0, false
	}
	return id, true
}

// formFile reads one uploaded file from a multipart form
func formFile(w http.ResponseWriter, r *http.Request, field string, maxSize int64) ([]byte, string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Please compress or resize your image.")
			return nil, "", "", false
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return nil, "", "", false
	}

	f, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return nil, "", "", false
	}
	defer f.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return nil, "", "", false
	}
	if header.Size > maxSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Please compress or resize your image.")
		return nil, "", "", false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.ErrorContext(r.Context(), "Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return nil, "", "", false
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	return data, header.Filename, contentType, true
}

// flexibleAmount accepts an amount sent as either a JSON string or number
type flexibleAmount string

func (a *flexibleAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexibleAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = flexibleAmount(n.String())
	return nil
}

// expenseView is an expense as the API returns it, with the amount in currency units
type expenseView struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Date        string  `json:"date"`
	Text        string  `json:"text,omitempty"`
	ReceiptFile string  `json:"receipt_file,omitempty"`
	HasReceipt  bool    `json:"has_receipt"`
}

func newExpenseView(e *Expense) expenseView {
	return expenseView{
		ID:          e.ID,
		Name:        e.Name,
		Amount:      centsToAmount(e.Amount),
		Category:    e.Category,
		Date:        e.Date,
		Text:        e.Text,
		ReceiptFile: e.ReceiptFile,
		HasReceipt:  e.ReceiptFile != "",
	}
}

// profileView is the account as the API returns it
type profileView struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	HasPhoto  bool   `json:"has_photo"`
}

func newProfileView(u *User) profileView {
	return profileView{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		HasPhoto:  u.ProfilePic != "",
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStatic serves the embedded CSS and JavaScript
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := staticFile(r.PathValue("file"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if _, err := s.service.Register(r.Context(), input); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Registration successful! Please log in.")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.login(w, r, user.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    newProfileView(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.logout(w, r); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Logged out")
}

func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	exists, err := s.service.EmailExists(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var msg ContactMessage
	if !decodeJSON(w, r, &msg) {
		return
	}

	if _, err := s.service.SubmitContact(r.Context(), msg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Thank you for contacting us! We will get back to you soon.")
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(user))
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.service.UpdateDetails(r.Context(), userIDFrom(r.Context()), req.FirstName, req.LastName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(user))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.service.ChangePassword(r.Context(), userIDFrom(r.Context()), req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if errors.Is(err, ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Password updated successfully")
}

func (s *Server) handleChangePhoto(w http.ResponseWriter, r *http.Request) {
	data, filename, _, ok := formFile(w, r, "photo", maxPhotoSize)
	if !ok {
		return
	}

	user, err := s.service.ChangePhoto(r.Context(), userIDFrom(r.Context()), filename, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(user))
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetProfilePhoto(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Write(data)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter := ExpenseFilter{
		Name: r.URL.Query().Get("name"),
		Date: r.URL.Query().Get("date"),
	}
	expenses, err := s.service.ListExpenses(r.Context(), userIDFrom(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]expenseView, 0, len(expenses))
	for _, e := range expenses {
		views = append(views, newExpenseView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string         `json:"name"`
		Amount      flexibleAmount `json:"amount"`
		Category    string         `json:"category"`
		Date        string         `json:"date"`
		Text        string         `json:"text"`
		ReceiptFile string         `json:"receipt_file"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	expense, err := s.service.AddExpense(r.Context(), userIDFrom(r.Context()), ExpenseInput{
		Name:        req.Name,
		Amount:      string(req.Amount),
		Category:    req.Category,
		Date:        req.Date,
		Text:        req.Text,
		ReceiptFile: req.ReceiptFile,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseView(expense))
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name     string         `json:"name"`
		Amount   flexibleAmount `json:"amount"`
		Category string         `json:"category"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	_, err := s.service.EditExpense(r.Context(), userIDFrom(r.Context()), id, ExpenseUpdate{
		Name:     req.Name,
		Amount:   string(req.Amount),
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteExpense(r.Context(), userIDFrom(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data, contentType, err := s.service.GetReceiptFile(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// scanResponse is the body returned after scanning a receipt
type scanResponse struct {
	Success     bool    `json:"success"`
	ExpenseName string  `json:"expense_name"`
	Amount      float64 `json:"amount"`
	RawText     string  `json:"raw_text"`
	ReceiptFile string  `json:"receipt_file"`
}

func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	data, filename, contentType, ok := formFile(w, r, "receipt", maxReceiptSize)
	if !ok {
		return
	}

	result, err := s.service.ScanReceipt(r.Context(), userIDFrom(r.Context()), filename, data, contentType)
	if errors.Is(err, ErrInvalidInput) {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Error scanning receipt", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "OCR failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Success:     true,
		ExpenseName: result.Name,
		Amount:      result.Amount,
		RawText:     result.RawText,
		ReceiptFile: result.ReceiptFile,
	})
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.DashboardStats(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.service.Analytics(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	if r.URL.Query().Get("format") == "csv" {
		var buf bytes.Buffer
		if err := s.service.WriteReportCSV(r.Context(), userID, &buf); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
		w.Write(buf.Bytes())
		return
	}

	report, err := s.service.Report(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
