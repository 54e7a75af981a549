package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	minPasswordLength = 6
	createdLayout     = "2006-01-02 15:04:05"
)

// Usernames double as player state owners, so they are restricted to
// characters that are safe in storage keys and file names.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// User is an account from the users file.
type User struct {
	Username string `toml:"username" json:"username"`
	Password string `toml:"password" json:"-"` // plaintext until the first load hashes it
	Role     string `toml:"role" json:"role"`
	Created  string `toml:"created" json:"created"`
}

type usersFile struct {
	Users []User `toml:"users"`
}

// UserStore keeps accounts in a TOML file. Plaintext passwords found in the
// file are hashed and written back on load.
type UserStore struct {
	mutex  sync.RWMutex
	users  map[string]User
	fs     afero.Afero
	path   string
	cost   int
	logger logrus.FieldLogger
}

// NewUserStore loads users from path, creating the file with a generated
// admin account when it does not exist.
func NewUserStore(fs afero.Fs, path string, logger logrus.FieldLogger) (*UserStore, error) {
	return newUserStore(fs, path, 12, logger)
}

func newUserStore(fs afero.Fs, path string, cost int, logger logrus.FieldLogger) (*UserStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	us := &UserStore{
		users:  make(map[string]User),
		fs:     afero.Afero{Fs: fs},
		path:   path,
		cost:   cost,
		logger: logger,
	}
	if err := us.load(); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return us, nil
}

func (us *UserStore) load() error {
	exists, err := us.fs.Exists(us.path)
	if err != nil {
		return err
	}
	if !exists {
		return us.createAdmin()
	}

	data, err := us.fs.ReadFile(us.path)
	if err != nil {
		return err
	}
	var file usersFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return fmt.Errorf("failed to parse users file: %w", err)
	}

	rehashed := 0
	for _, u := range file.Users {
		if !isHashed(u.Password) {
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), us.cost)
			if err != nil {
				return fmt.Errorf("failed to hash password for user %s: %w", u.Username, err)
			}
			u.Password = string(hash)
			rehashed++
		}
		if u.Role == "" {
			u.Role = RoleUser
		}
		us.users[u.Username] = u
	}

	if rehashed > 0 {
		us.logger.WithField("count", rehashed).Info("Hashed plaintext passwords in users file")
		return us.saveLocked()
	}
	return nil
}

func (us *UserStore) createAdmin() error {
	password, err := randomPassword(12)
	if err != nil {
		return fmt.Errorf("failed to generate default password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), us.cost)
	if err != nil {
		return fmt.Errorf("failed to hash default password: %w", err)
	}

	us.users["admin"] = User{
		Username: "admin",
		Password: string(hash),
		Role:     RoleAdmin,
		Created:  time.Now().Format(createdLayout),
	}
	if err := us.saveLocked(); err != nil {
		return err
	}

	us.logger.WithFields(logrus.Fields{
		"username":  "admin",
		"password":  password,
		"usersFile": us.path,
	}).Warn("Created default admin user, change this password by editing the users file")
	return nil
}

const usersHeader = `# Legato users
# Passwords are hashed automatically when the server starts.
# To add a user, add a [[users]] section with a username and a plaintext password.
# To change a password, replace the hash with a new plaintext password.

`

func (us *UserStore) saveLocked() error {
	users := lo.Values(us.users)
	slices.SortFunc(users, func(a, b User) int { return strings.Compare(a.Username, b.Username) })

	var buf bytes.Buffer
	buf.WriteString(usersHeader)
	if err := toml.NewEncoder(&buf).Encode(usersFile{Users: users}); err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}
	if err := us.fs.MkdirAll(filepath.Dir(us.path), 0755); err != nil {
		return fmt.Errorf("failed to create users directory: %w", err)
	}
	if err := us.fs.WriteFile(us.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	return nil
}

// Authenticate reports whether password matches the user's hash.
func (us *UserStore) Authenticate(username, password string) bool {
	us.mutex.RLock()
	u, ok := us.users[username]
	us.mutex.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// GetUser returns the user without its password hash.
func (us *UserStore) GetUser(username string) (User, bool) {
	us.mutex.RLock()
	defer us.mutex.RUnlock()

	u, ok := us.users[username]
	u.Password = ""
	return u, ok
}

// Users returns every account sorted by name, without password hashes.
func (us *UserStore) Users() []User {
	us.mutex.RLock()
	defer us.mutex.RUnlock()

	users := lo.MapToSlice(us.users, func(_ string, u User) User {
		u.Password = ""
		return u
	})
	slices.SortFunc(users, func(a, b User) int { return strings.Compare(a.Username, b.Username) })
	return users
}

// Register adds a user with the user role and saves the file.
func (us *UserStore) Register(username, password string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), us.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	us.mutex.Lock()
	defer us.mutex.Unlock()

	if _, exists := us.users[username]; exists {
		return ErrUserExists
	}
	us.users[username] = User{
		Username: username,
		Password: string(hash),
		Role:     RoleUser,
		Created:  time.Now().Format(createdLayout),
	}
	if err := us.saveLocked(); err != nil {
		delete(us.users, username)
		return err
	}
	return nil
}

// bcrypt hashes start with $2a$, $2b$, $2x$ or $2y$.
func isHashed(password string) bool {
	return len(password) >= 4 &&
		strings.HasPrefix(password, "$2") &&
		strings.ContainsRune("abxy", rune(password[2])) &&
		password[3] == '$'
}

func randomPassword(length int) (string, error) {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:length], nil
}
