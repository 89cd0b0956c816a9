package expense

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user or expense does not exist
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when registering an email that already has an account
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned on a failed login or a wrong current password
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrPasswordMismatch is returned when a new password and its confirmation differ
	ErrPasswordMismatch = errors.New("new passwords do not match")

	// ErrForbidden is returned when a user touches another user's expense
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput wraps validation failures
	ErrInvalidInput = errors.New("invalid input")
)

// dateLayout is how expense dates are stored and exchanged
const dateLayout = "2006-01-02"

// User is a registered account
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email" gorm:"uniqueIndex"`
	PasswordHash string    `json:"password_hash,omitempty"`
	ProfilePic   string    `json:"profile_pic,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expense is a single spending record
type Expense struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	UserID      int64     `json:"user_id" gorm:"index"`
	Name        string    `json:"name"`
	Amount      int64     `json:"amount"` // Amount in cents
	Category    string    `json:"category"`
	Date        string    `json:"date" gorm:"index"` // YYYY-MM-DD
	Text        string    `json:"text,omitempty"`   // OCR text of the attached receipt
	ReceiptFile string    `json:"receipt_file,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContactMessage is a message sent through the contact form
type ContactMessage struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	Newsletter bool      `json:"newsletter"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExpenseFilter narrows ListExpenses. Empty fields match everything.
type ExpenseFilter struct {
	Name string // case-insensitive substring of the expense name
	Date string // exact YYYY-MM-DD
}

// Match reports whether e passes the filter
func (f ExpenseFilter) Match(e *Expense) bool {
	if f.Date != "" && e.Date != f.Date {
		return false
	}
	if f.Name != "" && !containsFold(e.Name, f.Name) {
		return false
	}
	return true
}
