package config

// transferPutQConfig configures the transfer-put stage (spec §4.5, §6).
type transferPutQConfig struct {
	Tenancy       string `yaml:"tenancy"`
	RequireSecure bool   `yaml:"require_secure"`
}

// transferGetQConfig configures the transfer-get stage (spec §4.6, §6).
type transferGetQConfig struct {
	Tenancy       string `yaml:"tenancy"`
	RequireSecure bool   `yaml:"require_secure"`
	Chown         struct {
		Enable bool   `yaml:"enable"`
		Helper string `yaml:"helper"`
	} `yaml:"chown"`
}
