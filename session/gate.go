// Package session implements the password gate in front of the record API.
//
// Sessions live server-side in badger with a TTL. The client only holds a
// signed token naming its session, so logging out or expiring the badger
// entry revokes access even while the token itself is still valid.
package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// CookieName is the cookie carrying the session token
	CookieName = "termeles_session"
	// DefaultTTL is how long a login stays valid
	DefaultTTL = 24 * time.Hour

	keyPrefix = "session/"
	issuer    = "termelesinaplo"
)

// ErrInvalidPassword is returned by Login on a password mismatch
var ErrInvalidPassword = errors.New("invalid password")

// Authenticator resolves and manages the authorized state of a client
type Authenticator interface {
	Login(ctx context.Context, password string) (token string, expires time.Time, err error)
	Authenticated(ctx context.Context, token string) bool
	Logout(ctx context.Context, token string) error
}

// Config contains configuration for the gate
type Config struct {
	AdminPassword string
	Secret        string
	TTL           time.Duration
}

type state struct {
	Authorized bool      `json:"authorized"`
	CreatedAt  time.Time `json:"created_at"`
}

// Gate is the badger-backed Authenticator
type Gate struct {
	db       *badger.DB
	password []byte
	secret   []byte
	ttl      time.Duration
	logger   cmtlog.Logger
	now      func() time.Time
}

var _ Authenticator = (*Gate)(nil)

// NewGate creates a gate storing sessions in db
func NewGate(db *badger.DB, config Config, logger cmtlog.Logger) (*Gate, error) {
	if config.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if config.AdminPassword == "" {
		return nil, errors.New("admin password is required")
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		db:       db,
		password: []byte(config.AdminPassword),
		secret:   []byte(config.Secret),
		ttl:      ttl,
		logger:   logger.With("module", "session"),
		now:      time.Now,
	}, nil
}

// OpenStore opens the badger directory holding sessions. An empty dir
// opens an in-memory store.
func OpenStore(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return db, nil
}

// SetClock replaces the time source used for token issue and validation
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// TTL returns the fixed session lifetime
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Login compares the password with the configured one and, on a match,
// registers a new session and returns its signed token.
func (g *Gate) Login(ctx context.Context, password string) (string, time.Time, error) {
	if subtle.ConstantTimeCompare([]byte(password), g.password) != 1 {
		g.logger.Info("Login rejected")
		return "", time.Time{}, ErrInvalidPassword
	}

	issuedAt := g.now()
	expires := issuedAt.Add(g.ttl)
	sessionID := uuid.NewString()

	value, err := json.Marshal(state{Authorized: true, CreatedAt: issuedAt})
	if err != nil {
		return "", time.Time{}, err
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+sessionID), value).WithTTL(g.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storing session: %w", err)
	}

	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}

	g.logger.Info("Session created", "session", sessionID, "expires", expires)
	return token, expires, nil
}

// Authenticated reports whether token names a live, authorized session
func (g *Gate) Authenticated(ctx context.Context, token string) bool {
	sessionID, err := g.parse(token)
	if err != nil {
		return false
	}

	var st state
	err = g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			g.logger.Error("Reading session", "session", sessionID, "err", err)
		}
		return false
	}
	return st.Authorized
}

// Logout removes the session named by token. Unknown or invalid tokens are
// not an error.
func (g *Gate) Logout(ctx context.Context, token string) error {
	sessionID, err := g.parse(token)
	if err != nil {
		return nil
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + sessionID))
	})
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	g.logger.Info("Session destroyed", "session", sessionID)
	return nil
}

func (g *Gate) parse(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.ID == "" {
		return "", errors.New("invalid token")
	}
	return claims.ID, nil
}

// NewCookie builds the cookie handed out on login
func NewCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie builds a cookie that removes the session cookie
func ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// TokenFromRequest extracts the session token from the request cookie
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
