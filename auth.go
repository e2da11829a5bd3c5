package main

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"blogclient/internal/api"
	"blogclient/internal/session"
)

const (
	csrfCookieName = "csrf"
	csrfFieldName  = "csrf_token"
	csrfCookieAge  = 24 * time.Hour
)

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// CSRF protection using double-submit cookie pattern

func (b *Blog) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   b.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfCookieAge.Seconds()),
	})
}

func getCSRFToken(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func validateCSRF(r *http.Request) bool {
	cookieToken := getCSRFToken(r)
	formToken := r.FormValue(csrfFieldName)

	if cookieToken == "" || formToken == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) == 1
}

func parseFormWithCSRF(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return false
	}
	if !validateCSRF(r) {
		http.Error(w, "Invalid CSRF token", http.StatusForbidden)
		return false
	}
	return true
}

// ensureCSRFToken returns existing token or creates a new one
func (b *Blog) ensureCSRFToken(w http.ResponseWriter, r *http.Request) string {
	token := getCSRFToken(r)
	if token != "" {
		return token
	}

	token, err := generateToken()
	if err != nil {
		b.log.Error("generating csrf token", "error", err)
		return ""
	}
	b.setCSRFCookie(w, token)
	return token
}

// session returns the stored session. A store failure reads as signed out.
func (b *Blog) session(r *http.Request) session.Session {
	sess, err := b.api.Session(r.Context())
	if err != nil {
		b.log.Error("reading session", "error", err, "request_id", api.RequestID(r.Context()))
		return session.Session{}
	}
	return sess
}

// requireAuth sends visitors without an access token to the login page.
func (b *Blog) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !b.session(r).Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// sessionExpired redirects to the login page when err means the refresh
// after a 401 failed. The store has already been cleared by then.
func sessionExpired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, api.ErrSessionExpired) {
		return false
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
	return true
}

func (b *Blog) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := b.pageData(w, r, "Login")
		data["Form"] = loginForm{}
		b.render(w, "login.html", http.StatusOK, data)
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	form := loginForm{Username: strings.TrimSpace(r.FormValue("username"))}
	password := r.FormValue("password")

	fail := func(status int, msg string) {
		data := b.pageData(w, r, "Login")
		data["Form"] = form
		data["Error"] = msg
		b.render(w, "login.html", status, data)
	}

	if form.Username == "" || password == "" {
		fail(http.StatusBadRequest, "Username and password are required")
		return
	}

	_, err := b.api.Login(r.Context(), api.LoginRequest{Username: form.Username, Password: password})
	if err != nil {
		switch api.StatusCode(err) {
		case http.StatusBadRequest, http.StatusUnauthorized:
			fail(http.StatusUnauthorized, "Invalid username or password")
		case http.StatusTooManyRequests:
			fail(http.StatusTooManyRequests, "Too many login attempts. Please wait a minute.")
		default:
			b.log.Warn("login failed", "error", err, "request_id", api.RequestID(r.Context()))
			fail(http.StatusBadGateway, "Login failed. Please try again.")
		}
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := b.pageData(w, r, "Register")
		data["Form"] = registerForm{}
		data["Errors"] = map[string]string{}
		b.render(w, "register.html", http.StatusOK, data)
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	form := registerForm{
		Username: strings.TrimSpace(r.FormValue("username")),
		Email:    strings.TrimSpace(r.FormValue("email")),
	}
	password := r.FormValue("password")

	fail := func(status int, errs map[string]string) {
		data := b.pageData(w, r, "Register")
		data["Form"] = form
		data["Errors"] = errs
		b.render(w, "register.html", status, data)
	}

	if password != r.FormValue("password2") {
		fail(http.StatusBadRequest, map[string]string{"password2": "Passwords do not match"})
		return
	}

	_, err := b.api.Register(r.Context(), api.RegisterRequest{
		Username: form.Username,
		Email:    form.Email,
		Password: password,
	})
	if err != nil {
		errs := api.FieldErrors(err)
		if len(errs) == 0 {
			b.log.Warn("registration failed", "error", err, "request_id", api.RequestID(r.Context()))
			errs = map[string]string{"": "Registration failed. Please try again."}
		}
		status := api.StatusCode(err)
		if status == 0 || status >= 500 {
			status = http.StatusBadGateway
		}
		fail(status, errs)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Logout(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}

	if err := b.api.Logout(r.Context()); err != nil {
		b.log.Error("logging out", "error", err, "request_id", api.RequestID(r.Context()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
