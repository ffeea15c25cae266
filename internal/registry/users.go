package registry

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	ftperr "ftpgate/internal/errors"
)

// Users is the username;bcrypt-hash table guarding the façade's
// registry routes.  It is unrelated to FTP logins.
type Users struct {
	path string
	mu   sync.Mutex

	// Cost is the bcrypt cost for new hashes.
	Cost int
}

// NewUsers returns a user table backed by path.
func NewUsers(path string) *Users {
	return &Users{path: path, Cost: bcrypt.DefaultCost}
}

// Path returns the backing file.
func (u *Users) Path() string { return u.path }

// Authenticate checks password against the stored hash.  Unknown users
// and wrong passwords get the same AuthError.
func (u *Users) Authenticate(username, password string) error {
	u.mu.Lock()
	hashes, err := u.load()
	u.mu.Unlock()
	if err != nil {
		return err
	}
	hash, ok := hashes[username]
	if !ok {
		return ftperr.Auth("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ftperr.Auth("invalid credentials")
	}
	return nil
}

// Add stores a new user.  The name must be unused.
func (u *Users) Add(username, password string) error {
	if err := checkField("username", username); err != nil {
		return err
	}
	if password == "" {
		return ftperr.Validation("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.Cost)
	if err != nil {
		return ftperr.Validation("%v", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	recs, err := readRecords(u.path, 2)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(recs)+1)
	for _, rec := range recs {
		if rec.fields[0] == username {
			return ftperr.Validation("user %q already exists", username)
		}
		rows = append(rows, rec.fields)
	}
	rows = append(rows, []string{username, string(hash)})
	return writeRecords(u.path, rows, 0o600)
}

// Exists reports whether username is registered.
func (u *Users) Exists(username string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	hashes, err := u.load()
	if err != nil {
		return false, err
	}
	_, ok := hashes[username]
	return ok, nil
}

func (u *Users) load() (map[string]string, error) {
	recs, err := readRecords(u.path, 2)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(recs))
	for _, rec := range recs {
		out[rec.fields[0]] = rec.fields[1]
	}
	return out, nil
}
