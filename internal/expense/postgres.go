package expense

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresDB implements the DB interface on PostgreSQL through gorm
type PostgresDB struct {
	db *gorm.DB
}

// NewPostgresDB connects to dsn and migrates the schema
func NewPostgresDB(dsn string) (*PostgresDB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := db.AutoMigrate(&User{}, &Expense{}, &ContactMessage{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &PostgresDB{db: db}, nil
}

func gormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateUser inserts a new user
func (p *PostgresDB) CreateUser(ctx context.Context, user *User) error {
	user.Email = normalizeEmail(user.Email)
	err := p.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "duplicate key")) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (p *PostgresDB) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	if err := p.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, gormError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email, ignoring case
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, gormError(err)
	}
	return &user, nil
}

// UpdateUser overwrites an existing user
func (p *PostgresDB) UpdateUser(ctx context.Context, user *User) error {
	user.Email = normalizeEmail(user.Email)
	res := p.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).Select("*").Omit("created_at").Updates(user)
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveExpense inserts or updates an expense
func (p *PostgresDB) SaveExpense(ctx context.Context, expense *Expense) error {
	db := p.db.WithContext(ctx)
	if expense.ID == 0 {
		if err := db.Create(expense).Error; err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		return nil
	}

	res := db.Model(&Expense{}).Where("id = ?", expense.ID).Select("*").Omit("created_at").Updates(expense)
	if res.Error != nil {
		return fmt.Errorf("update expense: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetExpense retrieves an expense by ID
func (p *PostgresDB) GetExpense(ctx context.Context, id int64) (*Expense, error) {
	var expense Expense
	if err := p.db.WithContext(ctx).First(&expense, id).Error; err != nil {
		return nil, gormError(err)
	}
	return &expense, nil
}

// ListExpenses returns a user's matching expenses, newest date first
func (p *PostgresDB) ListExpenses(ctx context.Context, userID int64, filter ExpenseFilter) ([]*Expense, error) {
	q := p.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Name != "" {
		q = q.Where("strpos(lower(name), lower(?)) > 0", filter.Name)
	}
	if filter.Date != "" {
		q = q.Where("date = ?", filter.Date)
	}

	expenses := make([]*Expense, 0)
	if err := q.Order("date DESC").Order("id DESC").Find(&expenses).Error; err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense
func (p *PostgresDB) DeleteExpense(ctx context.Context, id int64) error {
	res := p.db.WithContext(ctx).Delete(&Expense{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete expense: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveContactMessage stores a contact form submission
func (p *PostgresDB) SaveContactMessage(ctx context.Context, msg *ContactMessage) error {
	if err := p.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("insert contact message: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func (p *PostgresDB) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
