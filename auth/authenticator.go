package auth

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/fernet/fernet-go"
)

// TokenAuthenticator backs the Authenticator capability with a
// fernet-encrypted access-token file, generalising the teacher's
// Authenticator (a plaintext tab-delimited access.dat decrypted with AES)
// to use fernet-go's authenticated encryption instead, and to the richer
// group/collection/role capability set spec §9 requires.
//
// The token file, once decrypted, is a tab-delimited table with records
// Name\tGroup\tRole\tToken, one principal per line.
type TokenAuthenticator struct {
	mu         sync.RWMutex
	principals map[string]Principal
	roles      map[string]Role // keyed by "group:principal"
}

// LoadTokenFile reads and fernet-decrypts tokenFilePath using key, and
// returns a TokenAuthenticator populated from its contents.
func LoadTokenFile(tokenFilePath string, key *fernet.Key) (*TokenAuthenticator, error) {
	cipherText, err := os.ReadFile(tokenFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading access token file: %w", err)
	}

	plainText := fernet.VerifyAndDecrypt(cipherText, 0, []*fernet.Key{key})
	if plainText == nil {
		return nil, fmt.Errorf("access token file %s failed fernet verification", tokenFilePath)
	}

	reader := csv.NewReader(bytes.NewReader(plainText))
	reader.Comma = '\t'
	reader.FieldsPerRecord = 4

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing access token file: %w", err)
	}

	a := &TokenAuthenticator{
		principals: make(map[string]Principal, len(records)),
		roles:      make(map[string]Role, len(records)),
	}
	for _, record := range records {
		name, group, role, token := record[0], record[1], record[2], record[3]
		a.principals[token] = Principal{Name: name, Group: group}
		a.roles[group+":"+name] = Role(role)
	}
	return a, nil
}

func (a *TokenAuthenticator) AuthenticateToken(token string) (Principal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	principal, found := a.principals[token]
	if !found {
		return Principal{}, fmt.Errorf("invalid access token")
	}
	return principal, nil
}

func (a *TokenAuthenticator) AuthenticateGroup(principal Principal, group string) (bool, error) {
	return principal.Group == group, nil
}

func (a *TokenAuthenticator) AuthenticateCollection(principal Principal, holdingLabel string) (bool, error) {
	// Collection-level authorization is delegated to the catalog's own
	// holding-ownership check (spec §4.4); at the auth layer a principal is
	// authorized to act on any collection within their own group.
	return true, nil
}

func (a *TokenAuthenticator) RoleOf(principal Principal, group string) (Role, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	role, found := a.roles[group+":"+principal.Name]
	if !found {
		return RoleUser, nil
	}
	return role, nil
}
