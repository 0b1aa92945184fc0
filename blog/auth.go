// blog/auth.go
package blog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SignupViewData is the data structure for the registration page.
type SignupViewData struct {
	viewBase
	Form SignupForm
}

// LoginViewData is the data structure for the login page.
type LoginViewData struct {
	viewBase
	Form LoginForm
}

// PasswordViewData is the data structure for the password change page.
type PasswordViewData struct {
	viewBase
	Form PasswordChangeForm
	Done bool
}

func (h *Handlers) registerAuthRoutes(r chi.Router) {
	r.Get("/auth/signup", h.signupForm)
	r.Post("/auth/signup", h.signup)
	r.Get("/auth/login", h.loginForm)
	r.Post("/auth/login", h.login)
	r.Get("/auth/logout", h.logout)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireLogin)
		r.Get("/auth/password", h.passwordChangeForm)
		r.Post("/auth/password", h.passwordChange)
	})
}

func (h *Handlers) signupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "signup.html", SignupViewData{viewBase: h.base(r)})
}

// signup registers an author and logs them straight in.
func (h *Handlers) signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.notFound(w, r)
		return
	}
	form := SignupForm{
		Username:    r.PostFormValue("username"),
		DisplayName: r.PostFormValue("display_name"),
		Password1:   r.PostFormValue("password1"),
		Password2:   r.PostFormValue("password2"),
	}
	if form.Validate() {
		if _, err := h.store.GetAuthorByUsername(ctx, form.Username); err == nil {
			form.Errors["username"] = "That username is taken."
		} else if !errors.Is(err, ErrNotFound) {
			h.serverError(w, r, err)
			return
		}
	}
	if len(form.Errors) > 0 {
		h.render(w, http.StatusOK, "signup.html", SignupViewData{viewBase: h.base(r), Form: form})
		return
	}

	author := NewAuthor(form.Username, form.DisplayName)
	if err := author.SetPassword(form.Password1); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.store.CreateAuthor(ctx, author); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.Session.RenewToken(ctx); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.Session.Put(ctx, sessionKeyAuthor, author.ID)
	h.log.Info("author signed up", "username", author.Username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) loginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", LoginViewData{viewBase: h.base(r)})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.notFound(w, r)
		return
	}
	form := LoginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if !form.Validate() {
		h.render(w, http.StatusOK, "login.html", LoginViewData{viewBase: h.base(r), Form: form})
		return
	}

	author, err := h.store.GetAuthorByUsername(ctx, form.Username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		h.serverError(w, r, err)
		return
	}
	ok := false
	if author != nil {
		ok, err = author.PasswordMatches(form.Password)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
	}
	if !ok {
		form.Errors["username"] = "Unknown username or wrong password."
		h.render(w, http.StatusOK, "login.html", LoginViewData{viewBase: h.base(r), Form: form})
		return
	}

	if err := h.Session.RenewToken(ctx); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.Session.Put(ctx, sessionKeyAuthor, author.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Destroy(r.Context()); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "logged_out.html", h.base(r))
}

func (h *Handlers) passwordChangeForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "password_change.html", PasswordViewData{viewBase: h.base(r)})
}

func (h *Handlers) passwordChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := h.Session.GetString(ctx, sessionKeyAuthor)
	author, err := h.store.GetAuthorByID(ctx, id)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.notFound(w, r)
		return
	}
	form := PasswordChangeForm{
		Old:  r.PostFormValue("old"),
		New1: r.PostFormValue("new1"),
		New2: r.PostFormValue("new2"),
	}
	if form.Validate() {
		ok, err := author.PasswordMatches(form.Old)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if !ok {
			form.Errors["old"] = "Current password is wrong."
		}
	}
	if len(form.Errors) > 0 {
		h.render(w, http.StatusOK, "password_change.html", PasswordViewData{viewBase: h.base(r), Form: form})
		return
	}

	if err := author.SetPassword(form.New1); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.store.UpdateAuthorPassword(ctx, author.ID, author.Hash); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "password_change.html", PasswordViewData{viewBase: h.base(r), Done: true})
}
