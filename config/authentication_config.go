package config

// authenticationConfig configures the injected authentication/authorization
// capability (spec §9's "dynamic dispatch of authenticators"). Backend is
// "" or "default" (auth.DefaultAuthenticator) or "token" (a token file
// checked with a Fernet key, read from Options["token_file"] and
// Options["fernet_key"]); nlds-server rejects any other name at startup.
type authenticationConfig struct {
	Backend string            `yaml:"backend"`
	Options map[string]string `yaml:"options"`
}
