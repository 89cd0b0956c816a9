package expense

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	usersBucket    = "users"
	emailsBucket   = "users_by_email"
	expensesBucket = "expenses"
	contactBucket  = "contact_messages"
)

// DB defines the interface for database operations
type DB interface {
	// CreateUser inserts a new user and sets its ID
	CreateUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email, ignoring case
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUser overwrites an existing user
	UpdateUser(ctx context.Context, user *User) error

	// SaveExpense inserts the expense when its ID is zero and updates it otherwise
	SaveExpense(ctx context.Context, expense *Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(ctx context.Context, id int64) (*Expense, error)

	// ListExpenses returns a user's expenses, newest date first
	ListExpenses(ctx context.Context, userID int64, filter ExpenseFilter) ([]*Expense, error)

	// DeleteExpense removes an expense
	DeleteExpense(ctx context.Context, id int64) error

	// SaveContactMessage stores a contact form submission
	SaveContactMessage(ctx context.Context, msg *ContactMessage) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{usersBucket, emailsBucket, expensesBucket, contactBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// itob encodes an ID as a big-endian key so bolt keeps keys in ID order
func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new user, enforcing a unique email
func (b *BoltDB) CreateUser(_ context.Context, user *User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket([]byte(emailsBucket))
		emailKey := []byte(normalizeEmail(user.Email))
		if emails.Get(emailKey) != nil {
			return ErrEmailTaken
		}

		users := tx.Bucket([]byte(usersBucket))
		seq, err := users.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating user id: %w", err)
		}
		user.ID = int64(seq)

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		if err := users.Put(itob(user.ID), data); err != nil {
			return err
		}
		return emails.Put(emailKey, itob(user.ID))
	})
}

func getUser(tx *bbolt.Tx, key []byte) (*User, error) {
	data := tx.Bucket([]byte(usersBucket)).Get(key)
	if data == nil {
		return nil, ErrNotFound
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshaling user: %w", err)
	}
	return &user, nil
}

// GetUser retrieves a user by ID
func (b *BoltDB) GetUser(_ context.Context, id int64) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = getUser(tx, itob(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user through the email index
func (b *BoltDB) GetUserByEmail(_ context.Context, email string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(emailsBucket)).Get([]byte(normalizeEmail(email)))
		if key == nil {
			return ErrNotFound
		}
		var err error
		user, err = getUser(tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser overwrites an existing user, moving its email index entry if needed
func (b *BoltDB) UpdateUser(_ context.Context, user *User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		existing, err := getUser(tx, itob(user.ID))
		if err != nil {
			return err
		}

		emails := tx.Bucket([]byte(emailsBucket))
		oldKey := []byte(normalizeEmail(existing.Email))
		newKey := []byte(normalizeEmail(user.Email))
		if string(oldKey) != string(newKey) {
			if emails.Get(newKey) != nil {
				return ErrEmailTaken
			}
			if err := emails.Delete(oldKey); err != nil {
				return err
			}
			if err := emails.Put(newKey, itob(user.ID)); err != nil {
				return err
			}
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		return tx.Bucket([]byte(usersBucket)).Put(itob(user.ID), data)
	})
}

// SaveExpense inserts or updates an expense
func (b *BoltDB) SaveExpense(_ context.Context, expense *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expensesBucket))
		if expense.ID == 0 {
			seq, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating expense id: %w", err)
			}
			expense.ID = int64(seq)
		} else if bucket.Get(itob(expense.ID)) == nil {
			return ErrNotFound
		}

		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put(itob(expense.ID), data)
	})
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(_ context.Context, id int64) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expensesBucket)).Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses scans every expense and keeps the user's matching ones
func (b *BoltDB) ListExpenses(_ context.Context, userID int64, filter ExpenseFilter) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expensesBucket)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if expense.UserID == userID && filter.Match(&expense) {
				expenses = append(expenses, &expense)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortExpenses(expenses)
	return expenses, nil
}

// DeleteExpense removes an expense
func (b *BoltDB) DeleteExpense(_ context.Context, id int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expensesBucket))
		if bucket.Get(itob(id)) == nil {
			return ErrNotFound
		}
		return bucket.Delete(itob(id))
	})
}

// SaveContactMessage stores a contact form submission
func (b *BoltDB) SaveContactMessage(_ context.Context, msg *ContactMessage) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(contactBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating message id: %w", err)
		}
		msg.ID = int64(seq)

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshaling contact message: %w", err)
		}
		return bucket.Put(itob(msg.ID), data)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// sortExpenses orders by date descending, then by ID descending
func sortExpenses(expenses []*Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].Date != expenses[j].Date {
			return expenses[i].Date > expenses[j].Date
		}
		return expenses[i].ID > expenses[j].ID
	})
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
