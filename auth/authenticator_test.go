// These tests verify that a fernet-encrypted access token file can be
// loaded and used to authenticate principals and resolve their roles.
package auth

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	setup()
	status := m.Run()
	breakdown()
	os.Exit(status)
}

func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestLoadTokenFile()
	tester.TestAuthenticateToken()
	tester.TestAuthenticateInvalidToken()
	tester.TestRoleOf()
}

var TestKey fernet.Key
var TestDir string
var TestTokenFile string
var TestAccessToken = "7029c1877e9c2dd3dab814cc0f2763af"

var TestPrincipal = Principal{Name: "jcarberry", Group: "workshop"}

func setup() {
	var err error
	TestDir, err = os.MkdirTemp(os.TempDir(), "nlds-auth-tests-")
	if err != nil {
		log.Panicf("couldn't create testing directory: %s", err.Error())
	}

	if err := TestKey.Generate(); err != nil {
		log.Panicf("couldn't generate fernet key: %s", err.Error())
	}

	plaintext := fmt.Sprintf("%s\t%s\t%s\t%s\n",
		TestPrincipal.Name, TestPrincipal.Group, "manager", TestAccessToken)
	token, err := fernet.EncryptAndSign([]byte(plaintext), &TestKey)
	if err != nil {
		log.Panicf("couldn't encrypt test access data: %s", err.Error())
	}

	TestTokenFile = filepath.Join(TestDir, "access.dat")
	if err := os.WriteFile(TestTokenFile, token, 0600); err != nil {
		log.Panicf("couldn't write test access data file: %s", err.Error())
	}
}

func breakdown() {
	if TestDir != "" {
		os.RemoveAll(TestDir)
	}
}

type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestLoadTokenFile() {
	assert := assert.New(t.Test)
	a, err := LoadTokenFile(TestTokenFile, &TestKey)
	assert.NoError(err)
	assert.NotNil(a)
}

func (t *SerialTests) TestAuthenticateToken() {
	assert := assert.New(t.Test)
	a, err := LoadTokenFile(TestTokenFile, &TestKey)
	assert.NoError(err)

	principal, err := a.AuthenticateToken(TestAccessToken)
	assert.NoError(err)
	assert.Equal(TestPrincipal.Name, principal.Name)
	assert.Equal(TestPrincipal.Group, principal.Group)
}

func (t *SerialTests) TestAuthenticateInvalidToken() {
	assert := assert.New(t.Test)
	a, err := LoadTokenFile(TestTokenFile, &TestKey)
	assert.NoError(err)

	_, err = a.AuthenticateToken("not-a-real-token")
	assert.Error(err)
}

func (t *SerialTests) TestRoleOf() {
	assert := assert.New(t.Test)
	a, err := LoadTokenFile(TestTokenFile, &TestKey)
	assert.NoError(err)

	role, err := a.RoleOf(TestPrincipal, TestPrincipal.Group)
	assert.NoError(err)
	assert.Equal(RoleManager, role)

	role, err = a.RoleOf(Principal{Name: "someone-else"}, TestPrincipal.Group)
	assert.NoError(err)
	assert.Equal(RoleUser, role, "unknown principals default to RoleUser")
}

func TestDefaultAuthenticatorAlwaysAuthorizes(t *testing.T) {
	assert := assert.New(t)
	var d DefaultAuthenticator

	principal, err := d.AuthenticateToken("anything")
	assert.NoError(err)
	assert.Equal("anything", principal.Name)

	ok, err := d.AuthenticateGroup(principal, "any-group")
	assert.NoError(err)
	assert.True(ok)

	role, err := d.RoleOf(principal, "any-group")
	assert.NoError(err)
	assert.Equal(RoleUser, role)
}
