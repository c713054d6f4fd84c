package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore"
)

var _ authcore.UserDirectory = (*Users)(nil)

// Users is the authcore.UserDirectory view of a Store.
type Users struct {
	store *Store
}

// Users returns the user directory backed by s.
func (s *Store) Users() *Users {
	return &Users{store: s}
}

const userColumns = `id, email, phone, wechat_open_id, password_hash, provider, status, role_id, first_name, last_name, created_at, updated_at`

func newUUID() string {
	return uuid.NewString()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*authcore.User, error) {
	var (
		u                    authcore.User
		email, phone, wechat sql.NullString
		provider             string
		status               int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &email, &phone, &wechat, &u.PasswordHash, &provider, &status, &u.RoleID, &u.FirstName, &u.LastName, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Email = email.String
	u.Phone = phone.String
	u.WechatOpenID = wechat.String
	u.Provider = authcore.Provider(provider)
	u.Status = authcore.Status(status)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func (u *Users) findUser(ctx context.Context, column, value string) (*authcore.User, error) {
	if strings.TrimSpace(value) == "" {
		return nil, authcore.ErrUserNotFound
	}
	row := u.store.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	return scanUser(row)
}

// FindByID returns authcore.ErrUserNotFound for unknown ids.
func (u *Users) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	return u.findUser(ctx, "id", id)
}

func (u *Users) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return u.findUser(ctx, "email", email)
}

func (u *Users) FindByPhone(ctx context.Context, phone string) (*authcore.User, error) {
	return u.findUser(ctx, "phone", phone)
}

// FindByExternalID looks up a user by WeChat openid.
func (u *Users) FindByExternalID(ctx context.Context, externalID string) (*authcore.User, error) {
	return u.findUser(ctx, "wechat_open_id", externalID)
}

// Create inserts a user. A taken email, phone or openid yields
// authcore.ErrUserExists.
func (u *Users) Create(ctx context.Context, in authcore.NewUser) (*authcore.User, error) {
	now := u.store.now().UTC()
	user := &authcore.User{
		ID:           u.store.newID(),
		Email:        in.Email,
		Phone:        in.Phone,
		WechatOpenID: in.WechatOpenID,
		PasswordHash: in.PasswordHash,
		Provider:     in.Provider,
		Status:       in.Status,
		RoleID:       in.RoleID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    fromMillis(toMillis(now)),
		UpdatedAt:    fromMillis(toMillis(now)),
	}

	_, err := u.store.sqlDB.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, nullable(user.Email), nullable(user.Phone), nullable(user.WechatOpenID), user.PasswordHash,
		string(user.Provider), int64(user.Status), user.RoleID, user.FirstName, user.LastName,
		toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, authcore.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// Update applies the non-nil fields of in and bumps updated_at.
func (u *Users) Update(ctx context.Context, id string, in authcore.UserUpdate) (*authcore.User, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	if in.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, nullable(*in.Email))
	}
	if in.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *in.PasswordHash)
	}
	if in.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, int64(*in.Status))
	}
	if in.FirstName != nil {
		sets = append(sets, "first_name = ?")
		args = append(args, *in.FirstName)
	}
	if in.LastName != nil {
		sets = append(sets, "last_name = ?")
		args = append(args, *in.LastName)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(u.store.now()), id)

	res, err := u.store.sqlDB.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, authcore.ErrUserExists
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, authcore.ErrUserNotFound
	}

	return u.FindByID(ctx, id)
}

// Remove deletes a user row.
func (u *Users) Remove(ctx context.Context, id string) error {
	res, err := u.store.sqlDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
