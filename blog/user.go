package blog

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Author is a registered user. Authors write posts and comments, rate other
// authors' posts, and follow each other. Rows are never deleted.
type Author struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Hash        []byte    `json:"hash"`
	Created     time.Time `json:"created"`
}

func NewAuthor(username, displayName string) *Author {
	return &Author{
		ID:          uuid.New().String(),
		Username:    username,
		DisplayName: displayName,
		Created:     time.Now().UTC(),
	}
}

// Name is what templates and the author facet show: the display name when
// set, otherwise the username.
func (a *Author) Name() string {
	if strings.TrimSpace(a.DisplayName) != "" {
		return a.DisplayName
	}
	return a.Username
}

func (a *Author) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	a.Hash = hash
	return nil
}

func (a *Author) PasswordMatches(input string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(a.Hash, []byte(input))
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

// Sanitize strips the credential hash before an Author leaves the server.
func (a *Author) Sanitize() {
	a.Hash = nil
}

func (a *Author) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

func (a *Author) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}
