package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads a single account from environment variables.
// It is read-only and sits last in the manager chain.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	cookie := os.Getenv("DOUYINDL_COOKIE")
	userAgent := os.Getenv("DOUYINDL_USER_AGENT")

	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}

	// The environment carries no account name
	if name == "" {
		name = "default"
	}

	return &Account{
		Name:         name,
		Cookie:       cookie,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("DOUYINDL_COOKIE") != ""
}
