package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for stored files
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles account and expense operations
type Service struct {
	db           DB
	scanner      scanning.Scanner
	storage      Storage
	idGenerator  IDGenerator
	timeSource   TimeSource
	passwordCost int
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:           db,
		scanner:      scanner,
		storage:      storage,
		idGenerator:  idGen,
		timeSource:   timeSrc,
		passwordCost: bcrypt.DefaultCost,
	}
}

// WithPasswordCost sets the bcrypt cost used for new password hashes
func (s *Service) WithPasswordCost(cost int) *Service {
	s.passwordCost = cost
	return s
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = path.Base(filepath.ToSlash(filename))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	// Phones produce very long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// fileExtension returns the lower-case extension without the dot
func fileExtension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// receiptPrefix is where a user's uploaded receipts live in storage
func receiptPrefix(userID int64) string {
	return fmt.Sprintf("receipts/%d/", userID)
}

// ownsReceiptFile reports whether name is a file ScanReceipt stored for the
// user: receipts/<user id>/<file> with no further directories or dot segments.
func ownsReceiptFile(userID int64, name string) bool {
	if path.Clean(name) != name || strings.Contains(name, "..") || strings.Contains(name, "\\") {
		return false
	}
	file, ok := strings.CutPrefix(name, receiptPrefix(userID))
	return ok && file != "" && !strings.Contains(file, "/")
}

const (
	maxExpenseNameLength = 100
	maxCategoryLength    = 50
)

// validateExpenseFields checks the free-text fields shared by add and edit
func validateExpenseFields(name, category string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxExpenseNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, maxExpenseNameLength)
	}
	if utf8.RuneCountInString(category) > maxCategoryLength {
		return fmt.Errorf("%w: category must be at most %d characters", ErrInvalidInput, maxCategoryLength)
	}
	return nil
}

// ExpenseInput is the user-supplied data for a new expense
type ExpenseInput struct {
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Text        string `json:"text"`
	ReceiptFile string `json:"receipt_file"`
}

// ExpenseUpdate holds the editable fields of an expense
type ExpenseUpdate struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

// today returns the current date in the stored date format
func (s *Service) today() string {
	return s.timeSource.Now().UTC().Format(dateLayout)
}

// AddExpense validates input and records a new expense for the user
func (s *Service) AddExpense(ctx context.Context, userID int64, input ExpenseInput) (*Expense, error) {
	name := strings.TrimSpace(input.Name)
	category := strings.TrimSpace(input.Category)
	if err := validateExpenseFields(name, category); err != nil {
		return nil, err
	}

	amount, err := parseAmountCents(input.Amount)
	if err != nil {
		return nil, err
	}

	date := strings.TrimSpace(input.Date)
	if date == "" {
		date = s.today()
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}

	receiptFile := strings.TrimSpace(input.ReceiptFile)
	if receiptFile != "" && !ownsReceiptFile(userID, receiptFile) {
		return nil, fmt.Errorf("%w: unknown receipt file", ErrInvalidInput)
	}

	now := s.timeSource.Now()
	expense := &Expense{
		UserID:      userID,
		Name:        name,
		Amount:      amount,
		Category:    category,
		Date:        date,
		Text:        input.Text,
		ReceiptFile: receiptFile,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// ownedExpense loads an expense and checks it belongs to the user
func (s *Service) ownedExpense(ctx context.Context, userID, id int64) (*Expense, error) {
	expense, err := s.db.GetExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	if expense.UserID != userID {
		return nil, ErrForbidden
	}
	return expense, nil
}

// GetExpense retrieves one of the user's expenses
func (s *Service) GetExpense(ctx context.Context, userID, id int64) (*Expense, error) {
	return s.ownedExpense(ctx, userID, id)
}

// EditExpense changes the name, amount and category of an expense
func (s *Service) EditExpense(ctx context.Context, userID, id int64, update ExpenseUpdate) (*Expense, error) {
	expense, err := s.ownedExpense(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(update.Name)
	category := strings.TrimSpace(update.Category)
	if err := validateExpenseFields(name, category); err != nil {
		return nil, err
	}
	amount, err := parseAmountCents(update.Amount)
	if err != nil {
		return nil, err
	}

	expense.Name = name
	expense.Amount = amount
	expense.Category = category
	expense.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("updating expense: %w", err)
	}
	return expense, nil
}

// DeleteExpense removes an expense and its receipt file
func (s *Service) DeleteExpense(ctx context.Context, userID, id int64) error {
	expense, err := s.ownedExpense(ctx, userID, id)
	if err != nil {
		return err
	}

	if expense.ReceiptFile != "" {
		if err := s.storage.Delete(ctx, expense.ReceiptFile); err != nil {
			// Log error but continue with database deletion
			slog.WarnContext(ctx, "Failed to delete receipt file", "file", expense.ReceiptFile, "error", err)
		}
	}

	if err := s.db.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// ListExpenses returns the user's expenses, newest date first
func (s *Service) ListExpenses(ctx context.Context, userID int64, filter ExpenseFilter) ([]*Expense, error) {
	filter.Name = strings.TrimSpace(filter.Name)
	filter.Date = strings.TrimSpace(filter.Date)
	if filter.Date != "" {
		if _, err := time.Parse(dateLayout, filter.Date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
		}
	}

	expenses, err := s.db.ListExpenses(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// GetReceiptFile returns the receipt attached to one of the user's expenses
func (s *Service) GetReceiptFile(ctx context.Context, userID, id int64) ([]byte, string, error) {
	expense, err := s.ownedExpense(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	if expense.ReceiptFile == "" {
		return nil, "", fmt.Errorf("expense has no receipt: %w", ErrNotFound)
	}

	data, err := s.storage.Get(ctx, expense.ReceiptFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, contentTypeForExtension(fileExtension(expense.ReceiptFile)), nil
}

// scanExtensions lists the receipt formats accepted for scanning
var scanExtensions = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"pdf":  "application/pdf",
	"heic": "image/heic",
	"heif": "image/heif",
}

func contentTypeForExtension(ext string) string {
	if ct, ok := scanExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ScanResult is the outcome of scanning an uploaded receipt
type ScanResult struct {
	scanning.ReceiptData
	ReceiptFile string `json:"receipt_file"`
}

// ScanReceipt stores an uploaded receipt and guesses its name and amount.
// The guess is not saved as an expense; the user confirms it first.
func (s *Service) ScanReceipt(ctx context.Context, userID int64, filename string, data []byte, contentType string) (*ScanResult, error) {
	ext := fileExtension(filename)
	if _, ok := scanExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: file type not allowed, use PNG, JPG, JPEG, PDF or HEIC", ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	// The validated extension decides how the upload is decoded
	contentType = contentTypeForExtension(ext)

	name := receiptPrefix(userID) + s.idGenerator.Generate() + "_" + sanitizeFilename(filename)
	savedPath, err := s.storage.Save(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	receiptData, err := s.scanner.ScanReceipt(ctx, data, contentType)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Clean up the saved file since scanning failed
		if delErr := s.storage.Delete(ctx, savedPath); delErr != nil {
			slog.WarnContext(ctx, "Failed to delete unscanned receipt", "file", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	slog.InfoContext(ctx, "Scanned receipt",
		"user_id", userID,
		"file", savedPath,
		"expense_name", receiptData.Name,
		"amount", receiptData.Amount,
	)

	return &ScanResult{
		ReceiptData: *receiptData,
		ReceiptFile: savedPath,
	}, nil
}

// SubmitContact stores a contact form message
func (s *Service) SubmitContact(ctx context.Context, msg ContactMessage) (*ContactMessage, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.Message = strings.TrimSpace(msg.Message)
	if msg.Name == "" || msg.Email == "" || msg.Subject == "" || msg.Message == "" {
		return nil, fmt.Errorf("%w: name, email, subject and message are required", ErrInvalidInput)
	}
	msg.ID = 0
	msg.CreatedAt = s.timeSource.Now()

	if err := s.db.SaveContactMessage(ctx, &msg); err != nil {
		return nil, fmt.Errorf("saving contact message: %w", err)
	}
	return &msg, nil
}

// isNotFound reports whether err means a missing record
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
