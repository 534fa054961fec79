package forum

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const passwordCost = 14

// UserStore loads accounts for login and session checks.
type UserStore interface {
	SaveUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

func NewUser(email, handle string, admin bool) *User {
	now := time.Now().UTC()
	return &User{
		Notifications: make([]Notification, 0),
		ID:            uuid.New().String(),
		Email:         email,
		Handle:        handle,
		Created:       now,
		Updated:       now,
		Admin:         admin,
	}
}

// User is a forum account. Admins moderate expert posts.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Hash          []byte         `json:"hash,omitempty"`
	Created       time.Time      `json:"created"`
	Updated       time.Time      `json:"updated"`
	Handle        string         `json:"handle"`
	Admin         bool           `json:"admin"`
	Notifications []Notification `json:"notifications"`
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return err
	}
	u.Hash = hash
	u.Updated = time.Now().UTC()
	return nil
}

func (u *User) PasswordMatches(input string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(u.Hash, []byte(input))
	if err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, err
		}
	}
	return true, nil
}

// Sanitize strips credentials before the user is written to a response.
func (u *User) Sanitize() {
	u.Hash = nil
}

type Notification struct {
	From      string    `json:"from"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ReadAt    time.Time `json:"read_at"`
	Link      string    `json:"link"`
}

func NewNotification(from, userID, message, link string) Notification {
	return Notification{
		From:      from,
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
		Link:      link,
	}
}
