package www

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

const (
	sessionName       = "truckdispatch-session"
	sessionOperator   = "operator"
	defaultOperator   = "admin"
	minPasswordLength = 8
	sessionMaxAge     = 12 * 60 * 60
)

// Operators sign in with a cookie session; everyone else (requesters,
// vendors) hits the public API.
func newSessionStore(secret string) *sessions.CookieStore {
	if secret == "" {
		secret = "truckdispatch-default-secret-change-me"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.Path = "/"
	s.Options.MaxAge = sessionMaxAge
	s.Options.HttpOnly = true
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func passwordMatches(op *store.Operator, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) == nil
}

// getUsername returns the signed-in operator, or "" for anonymous requests.
func (h *Handlers) getUsername(r *http.Request) string {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return ""
	}
	name, _ := session.Values[sessionOperator].(string)
	return name
}

func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.getUsername(r) == "" {
			h.jsonError(w, "login required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ensureDefaultOperator seeds admin/admin on an empty operators table.
func (h *Handlers) ensureDefaultOperator(db *store.DB) {
	n, err := db.CountOperators()
	if err != nil {
		log.Printf("auth: count operators: %v", err)
		return
	}
	if n > 0 {
		return
	}
	hash, err := hashPassword(defaultOperator)
	if err != nil {
		return
	}
	if _, err := db.CreateOperator(defaultOperator, hash); err != nil {
		log.Printf("auth: seed operator: %v", err)
		return
	}
	log.Printf("auth: seeded operator %q with the default password", defaultOperator)
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))

	db := h.engine.DB()
	op, err := db.GetOperator(username)
	if err != nil || !passwordMatches(op, r.FormValue("password")) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("auth: lookup %q: %v", username, err)
		}
		h.jsonError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}
	if err := db.TouchOperatorLogin(op.Username, time.Now()); err != nil {
		log.Printf("auth: touch login %q: %v", op.Username, err)
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values[sessionOperator] = op.Username
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: session save: %v", err)
		h.jsonError(w, "session error", http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, map[string]any{"ok": true, "username": op.Username})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	delete(session.Values, sessionOperator)
	session.Options.MaxAge = -1
	session.Save(r, w)
	h.jsonOK(w, map[string]any{"ok": true})
}

type passwordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// apiChangePassword lets the signed-in operator replace their own password.
// Accepts JSON or form fields.
func (h *Handlers) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordChange
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeBody(r, &req); err != nil {
			h.jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Current = r.FormValue("current_password")
		req.New = r.FormValue("new_password")
	}
	if len(req.New) < minPasswordLength {
		h.jsonError(w, "new password is too short", http.StatusBadRequest)
		return
	}

	username := h.getUsername(r)
	db := h.engine.DB()
	op, err := db.GetOperator(username)
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	if !passwordMatches(op, req.Current) {
		h.jsonError(w, "current password is wrong", http.StatusForbidden)
		return
	}
	hash, err := hashPassword(req.New)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := db.SetOperatorPassword(username, hash); err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	log.Printf("auth: operator %s changed password", username)
	h.jsonOK(w, map[string]any{"ok": true})
}
