package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := &Account{
		Name:      "main",
		Cookie:    "sessionid=abcdef0123456789; ttwid=xyz",
		UserAgent: "TestAgent/1.0",
	}

	if err := manager.Store(account); err != nil {
		t.Errorf("Failed to store account: %v", err)
	}

	retrieved, err := manager.Retrieve("main")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}
	if retrieved.Name != account.Name {
		t.Errorf("Name mismatch: got %s, want %s", retrieved.Name, account.Name)
	}
	if retrieved.Cookie != account.Cookie {
		t.Errorf("Cookie mismatch: got %s, want %s", retrieved.Cookie, account.Cookie)
	}

	accounts, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		t.Error("Expected at least one account in list")
	}

	sanitized := SanitizeAccount(account)
	if sanitized.Cookie == account.Cookie {
		t.Error("Cookie should be masked")
	}

	if err := manager.Delete("main"); err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}
	if mockStore.Exists("main") {
		t.Error("Account should be gone after delete")
	}
}

func TestManagerRejectsIncompleteAccounts(t *testing.T) {
	manager, _ := NewMockManager()

	if err := manager.Store(&Account{Cookie: "sessionid=x"}); err == nil {
		t.Error("Expected error for missing account name")
	}
	if err := manager.Store(&Account{Name: "main"}); err == nil {
		t.Error("Expected error for missing cookie")
	}
}

func TestManagerFallsThroughStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = ErrStoreUnavailable
	broken.RetrieveError = ErrStoreUnavailable

	working := NewMockStore()
	manager := NewMockManagerWithStores(broken, working)

	account := &Account{Name: "main", Cookie: "sessionid=abc123def456"}
	if err := manager.Store(account); err != nil {
		t.Fatalf("Store should fall through to the working store: %v", err)
	}

	if !working.Exists("main") {
		t.Error("Account should land in the second store")
	}

	retrieved, err := manager.Retrieve("main")
	if err != nil {
		t.Fatalf("Retrieve should fall through: %v", err)
	}
	if retrieved.Cookie != account.Cookie {
		t.Errorf("Cookie mismatch: got %s", retrieved.Cookie)
	}
}

func TestListPrefersNewestVersion(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()

	base := time.Now()
	older.Store(&Account{Name: "main", Cookie: "old", LastModified: base.Add(-time.Hour)})
	newer.Store(&Account{Name: "main", Cookie: "new", LastModified: base})

	manager := NewMockManagerWithStores(older, newer)

	accounts, err := manager.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("Expected one merged account, got %d", len(accounts))
	}
	if accounts[0].Cookie != "new" {
		t.Errorf("Expected the newest version to win, got cookie %q", accounts[0].Cookie)
	}
}

func TestEncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("DOUYINDL_PASSPHRASE", "test-passphrase")
	defer os.Unsetenv("DOUYINDL_PASSPHRASE")

	path := filepath.Join(dir, "credentials.enc")
	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	account := &Account{
		Name:         "main",
		Cookie:       "sessionid=secret0123456789",
		LastModified: time.Now(),
	}
	if err := store.Store(account); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	// The cookie must not appear in the file
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read store file: %v", err)
	}
	if string(content) == "" {
		t.Fatal("Store file is empty")
	}
	if strings.Contains(string(content), "secret0123456789") {
		t.Error("Cookie stored in plaintext")
	}

	// A fresh store with the same passphrase can read it back
	reopened, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	retrieved, err := reopened.Retrieve("main")
	if err != nil {
		t.Fatalf("Failed to retrieve after reopen: %v", err)
	}
	if retrieved.Cookie != account.Cookie {
		t.Errorf("Cookie mismatch after reopen: got %s", retrieved.Cookie)
	}

	// Deleting the last account removes the file
	if err := reopened.Delete("main"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Store file should be removed with the last account")
	}
}

func TestEnvironmentStore(t *testing.T) {
	os.Setenv("DOUYINDL_COOKIE", "sessionid=env0123456789")
	defer os.Unsetenv("DOUYINDL_COOKIE")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if account.Name != "default" {
		t.Errorf("Expected default account name, got %s", account.Name)
	}
	if account.Cookie != "sessionid=env0123456789" {
		t.Errorf("Cookie mismatch: got %s", account.Cookie)
	}

	if err := store.Store(account); err != ErrStoreUnavailable {
		t.Error("Environment store should refuse writes")
	}
	if err := store.Delete("default"); err != ErrStoreUnavailable {
		t.Error("Environment store should refuse deletes")
	}
}

func TestMaskString(t *testing.T) {
	if got := maskString("short"); got != "********" {
		t.Errorf("Short strings should be fully masked, got %q", got)
	}
	if got := maskString("sessionid=abcdef012345"); got != "sess...2345" {
		t.Errorf("Unexpected mask: %q", got)
	}
}
