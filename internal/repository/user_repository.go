package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/utils"
)

// UserRepo is the user directory: account storage for authentication
// and contact lookup for notifications.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, name, password_hash, role, is_active, created_at, updated_at`

// Create hashes password and inserts the user, returning its ID.
func (r *UserRepo) Create(ctx context.Context, email, name, password, role string, cost int) (uint64, error) {
	email = normalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO users (email, name, password_hash, role) VALUES (?,?,?,?)",
		email, strings.TrimSpace(name), hash, role)
	if err != nil {
		if IsDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.  A missing user yields
// sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.  A missing user yields sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// Contact resolves the delivery details of one user.
func (r *UserRepo) Contact(ctx context.Context, userID uint64) (model.Contact, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return model.Contact{}, err
	}
	return model.Contact{UserID: u.ID, Email: u.Email, Name: u.Name}, nil
}

// ActiveContacts returns every active user.
func (r *UserRepo) ActiveContacts(ctx context.Context) ([]model.Contact, error) {
	return r.contacts(ctx, "SELECT id, email, name FROM users WHERE is_active = 1 ORDER BY id")
}

// ContactsForBookings returns the distinct users owning the given
// bookings.  Unknown booking ids are skipped.
func (r *UserRepo) ContactsForBookings(ctx context.Context, bookingIDs []string) ([]model.Contact, error) {
	if len(bookingIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(bookingIDs))
	for i, id := range bookingIDs {
		args[i] = id
	}
	return r.contacts(ctx,
		`SELECT DISTINCT u.id, u.email, u.name FROM users u
		 JOIN bookings b ON b.user_id = u.id
		 WHERE b.id IN (`+placeholders(len(bookingIDs))+`) ORDER BY u.id`, args...)
}

func (r *UserRepo) contacts(ctx context.Context, q string, args ...any) ([]model.Contact, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.UserID, &c.Email, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
