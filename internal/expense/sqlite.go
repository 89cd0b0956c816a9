package expense

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteDB implements the DB interface on a SQLite file
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (and migrates) a SQLite database at path
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := runMigrations(path); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// runMigrations applies the embedded migrations on a separate connection
func runMigrations(path string) error {
	migrateDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := migratesqlite.WithInstance(migrateDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, first_name, last_name, email, password_hash, profile_pic, created_at, updated_at`

func scanUser(row rowScanner) (*User, error) {
	var (
		user               User
		created, updated string
	)
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email,
		&user.PasswordHash, &user.ProfilePic, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = parseTime(created)
	user.UpdatedAt = parseTime(updated)
	return &user, nil
}

const expenseColumns = `id, user_id, name, amount_cents, category, date, text, receipt_file, created_at, updated_at`

func scanExpense(row rowScanner) (*Expense, error) {
	var (
		expense          Expense
		created, updated string
	)
	err := row.Scan(&expense.ID, &expense.UserID, &expense.Name, &expense.Amount,
		&expense.Category, &expense.Date, &expense.Text, &expense.ReceiptFile, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	expense.CreatedAt = parseTime(created)
	expense.UpdatedAt = parseTime(updated)
	return &expense, nil
}

// CreateUser inserts a new user
func (s *SQLiteDB) CreateUser(ctx context.Context, user *User) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, email, password_hash, profile_pic, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.FirstName, user.LastName, normalizeEmail(user.Email), user.PasswordHash, user.ProfilePic,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteDB) GetUser(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail retrieves a user by email, ignoring case
func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
}

// UpdateUser overwrites an existing user
func (s *SQLiteDB) UpdateUser(ctx context.Context, user *User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, email = ?, password_hash = ?, profile_pic = ?, updated_at = ?
		 WHERE id = ?`,
		user.FirstName, user.LastName, normalizeEmail(user.Email), user.PasswordHash, user.ProfilePic,
		formatTime(user.UpdatedAt), user.ID)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(res)
}

// SaveExpense inserts or updates an expense
func (s *SQLiteDB) SaveExpense(ctx context.Context, expense *Expense) error {
	if expense.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO expenses (user_id, name, amount_cents, category, date, text, receipt_file, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			expense.UserID, expense.Name, expense.Amount, expense.Category, expense.Date, expense.Text,
			expense.ReceiptFile, formatTime(expense.CreatedAt), formatTime(expense.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("expense id: %w", err)
		}
		expense.ID = id
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET user_id = ?, name = ?, amount_cents = ?, category = ?, date = ?, text = ?,
		 receipt_file = ?, updated_at = ? WHERE id = ?`,
		expense.UserID, expense.Name, expense.Amount, expense.Category, expense.Date, expense.Text,
		expense.ReceiptFile, formatTime(expense.UpdatedAt), expense.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireAffected(res)
}

// GetExpense retrieves an expense by ID
func (s *SQLiteDB) GetExpense(ctx context.Context, id int64) (*Expense, error) {
	return scanExpense(s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
}

// ListExpenses returns a user's matching expenses, newest date first
func (s *SQLiteDB) ListExpenses(ctx context.Context, userID int64, filter ExpenseFilter) ([]*Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE user_id = ?`
	args := []any{userID}
	if filter.Name != "" {
		query += ` AND instr(lower(name), lower(?)) > 0`
		args = append(args, filter.Name)
	}
	if filter.Date != "" {
		query += ` AND date = ?`
		args = append(args, filter.Date)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]*Expense, 0)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense
func (s *SQLiteDB) DeleteExpense(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireAffected(res)
}

// SaveContactMessage stores a contact form submission
func (s *SQLiteDB) SaveContactMessage(ctx context.Context, msg *ContactMessage) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_messages (name, email, subject, message, newsletter, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.Name, msg.Email, msg.Subject, msg.Message, msg.Newsletter, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert contact message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("contact message id: %w", err)
	}
	msg.ID = id
	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
