package identity

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type Status int

const (
	Anonymous Status = iota
	Identified
)

func (s Status) String() string {
	if s == Identified {
		return "identified"
	}
	return "anonymous"
}

// Identity is what is known about the visitor. Once Identified it never goes back.
type Identity struct {
	Email  string
	Status Status
}

// Identify returns the identified state for email.
func Identify(email string) Identity {
	return Identity{Email: email, Status: Identified}
}

func (i Identity) Known() bool {
	return i.Status == Identified
}

// Session is the bootstrapped state of one page load.
type Session struct {
	ID       string
	Identity Identity
}

// Bootstrap reads the persisted email and session id. The session id is reused only when
// an email is already known; otherwise a new one is minted and persisted, so an anonymous
// session never continues under a later identified one.
func Bootstrap(store Store, now time.Time) (Session, error) {
	email, err := store.Get(KeyEmail)
	if err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeyEmail, err)
	}
	existing, err := store.Get(KeySessionID)
	if err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeySessionID, err)
	}

	session := Session{}
	if email != "" {
		session.Identity = Identify(email)
	}

	if existing != "" && email != "" {
		session.ID = existing
		return session, nil
	}

	id, err := NewSessionID(now)
	if err != nil {
		return Session{}, err
	}
	if err := store.Set(KeySessionID, id); err != nil {
		return Session{}, fmt.Errorf("persist %s: %w", KeySessionID, err)
	}
	session.ID = id
	return session, nil
}

// NewSessionID returns "session-" followed by a ULID (millisecond timestamp + random suffix).
func NewSessionID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return "session-" + id.String(), nil
}

// RememberEmail persists a discovered email.
func RememberEmail(store Store, email string) error {
	return store.Set(KeyEmail, email)
}

// Forget clears the persisted identity so the next Bootstrap starts a fresh session.
func Forget(store Store) error {
	if err := store.Delete(KeyEmail); err != nil {
		return err
	}
	return store.Delete(KeySessionID)
}
