// Package session is the single source of truth for "who is logged in
// and with what role".
//
// The Store owns the in-memory Identity and mirrors it to durable client
// storage so a sign-in survives restarts. Restoration is optimistic: a
// persisted token is trusted until a later API call is rejected, at
// which point the caller clears the session.
//
// Only the Store mutates the Identity (Set/Clear). Everything else — the
// route guard, the API client, the chat session — only reads it.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shikshasetu/shiksha-client/internal/auth"
	"github.com/shikshasetu/shiksha-client/internal/model"
)

// Storage is the durable key/value persistence the Store writes through
// to. The sqlite package provides the real implementation; tests use an
// in-memory map.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Storage keys. Fixed names so a newer client build can still read what
// an older one persisted.
const (
	sessionKey  = "session"
	languageKey = "language"
)

// Identity is the authenticated actor: bearer token plus profile.
// Token and User are either both set or both absent — there is no state
// with a token but no user, or vice versa.
type Identity struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Store holds the process-wide session state.
type Store struct {
	storage Storage
	logger  *slog.Logger

	mu       sync.RWMutex
	identity *Identity // nil when signed out
}

// NewStore creates a Store backed by the given storage. Call Restore
// once at startup to load any persisted session.
func NewStore(storage Storage, logger *slog.Logger) *Store {
	return &Store{storage: storage, logger: logger}
}

// Restore loads the persisted session, if any, into memory.
//
// Anything unexpected — storage failure, unparsable JSON, a malformed
// token, a token without a user — degrades to "not logged in". Restore
// never returns an error: a broken persisted session is indistinguishable
// from no session at all.
func (s *Store) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil

	raw, ok, err := s.storage.Get(sessionKey)
	if err != nil {
		s.logger.Warn("session storage unreadable, starting signed out",
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		s.logger.Warn("persisted session is malformed, discarding")
		return
	}

	// Both halves must be present and the token must at least look like
	// a JWT. The backend still has the final say on validity.
	if id.Token == "" || id.User.ID == "" || !auth.WellFormed(id.Token) {
		s.logger.Warn("persisted session is incomplete, discarding")
		return
	}

	s.identity = &id
	s.logger.Info("session restored",
		slog.String("userID", id.User.ID),
		slog.String("role", string(id.User.Role)),
	)
}

// Set records a successful sign-in (login, signup, or OAuth callback)
// and persists it. A storage failure is logged and swallowed — the
// in-memory session still works for the life of the process.
func (s *Store) Set(token string, user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := Identity{Token: token, User: user}
	s.identity = &id

	raw, err := json.Marshal(id)
	if err == nil {
		err = s.storage.Set(sessionKey, string(raw))
	}
	if err != nil {
		s.logger.Warn("could not persist session",
			slog.String("error", err.Error()),
		)
	}
}

// Clear signs out: in-memory identity reset, persisted entry removed.
// Called on explicit logout and whenever the backend rejects the token.
// Idempotent — clearing an absent session is a no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	if err := s.storage.Delete(sessionKey); err != nil {
		s.logger.Warn("could not remove persisted session",
			slog.String("error", err.Error()),
		)
	}
}

// Identity returns the current identity and whether one is present.
func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Token returns the current bearer token, or "" when signed out.
// Outgoing API calls attach it as a bearer credential.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return ""
	}
	return s.identity.Token
}

// Language returns the persisted language preference, or def when none
// is stored (or storage is unavailable).
func (s *Store) Language(def string) string {
	lang, ok, err := s.storage.Get(languageKey)
	if err != nil || !ok || lang == "" {
		return def
	}
	return lang
}

// SetLanguage persists the language preference. Storage failures are
// logged and swallowed, like every other persistence path here.
func (s *Store) SetLanguage(lang string) {
	if err := s.storage.Set(languageKey, lang); err != nil {
		s.logger.Warn("could not persist language preference",
			slog.String("error", err.Error()),
		)
	}
}
