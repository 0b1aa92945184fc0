// blog/forms.go
package blog

import (
	"strconv"
	"strings"
)

// FieldErrors maps a form field to its validation message. Templates render
// the message next to the field and the submission is never applied while
// any are present.
type FieldErrors map[string]string

// PostForm backs the create and edit pages.
type PostForm struct {
	Text    string
	GroupID string // raw select value; "" means no group
	Errors  FieldErrors
}

func (f *PostForm) Validate() bool {
	f.Errors = FieldErrors{}
	if strings.TrimSpace(f.Text) == "" {
		f.Errors["text"] = "Post text is required."
	}
	if f.GroupID != "" {
		if _, err := strconv.ParseInt(f.GroupID, 10, 64); err != nil {
			f.Errors["group"] = "Choose a group from the list."
		}
	}
	return len(f.Errors) == 0
}

// Group returns the parsed group reference, nil when none was chosen. Only
// meaningful after a successful Validate.
func (f *PostForm) Group() *int64 {
	if f.GroupID == "" {
		return nil
	}
	id, err := strconv.ParseInt(f.GroupID, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// CommentForm backs the comment box on the detail page.
type CommentForm struct {
	Text   string
	Errors FieldErrors
}

func (f *CommentForm) Validate() bool {
	f.Errors = FieldErrors{}
	if strings.TrimSpace(f.Text) == "" {
		f.Errors["text"] = "Comment text is required."
	}
	return len(f.Errors) == 0
}

// RatingForm backs the star widget. An empty value is valid and means
// "leave the existing rating alone".
type RatingForm struct {
	Value string
}

// Rating returns the chosen value, or 0 for empty/out-of-range input.
// Anything outside 1..5 is ignored rather than rejected.
func (f *RatingForm) Rating() int {
	n, err := strconv.Atoi(f.Value)
	if err != nil || n < 1 || n > 5 {
		return 0
	}
	return n
}

// SignupForm backs registration.
type SignupForm struct {
	Username    string
	DisplayName string
	Password1   string
	Password2   string
	Errors      FieldErrors
}

func (f *SignupForm) Validate() bool {
	f.Errors = FieldErrors{}
	f.Username = strings.TrimSpace(f.Username)
	f.DisplayName = strings.TrimSpace(f.DisplayName)
	if f.Username == "" {
		f.Errors["username"] = "Username is required."
	} else if strings.ContainsAny(f.Username, " /?&#%") {
		f.Errors["username"] = "Username may not contain spaces or URL characters."
	}
	if len(f.Password1) < 8 {
		f.Errors["password1"] = "Password must be at least 8 characters."
	}
	if f.Password1 != f.Password2 {
		f.Errors["password2"] = "Passwords do not match."
	}
	return len(f.Errors) == 0
}

// LoginForm backs the login page.
type LoginForm struct {
	Username string
	Password string
	Errors   FieldErrors
}

func (f *LoginForm) Validate() bool {
	f.Errors = FieldErrors{}
	if strings.TrimSpace(f.Username) == "" {
		f.Errors["username"] = "Username is required."
	}
	if f.Password == "" {
		f.Errors["password"] = "Password is required."
	}
	return len(f.Errors) == 0
}

// PasswordChangeForm backs the password change page.
type PasswordChangeForm struct {
	Old    string
	New1   string
	New2   string
	Errors FieldErrors
}

func (f *PasswordChangeForm) Validate() bool {
	f.Errors = FieldErrors{}
	if f.Old == "" {
		f.Errors["old"] = "Current password is required."
	}
	if len(f.New1) < 8 {
		f.Errors["new1"] = "New password must be at least 8 characters."
	}
	if f.New1 != f.New2 {
		f.Errors["new2"] = "Passwords do not match."
	}
	return len(f.Errors) == 0
}
