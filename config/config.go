package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// global config variables, populated by Init
var General generalConfig
var Fabric fabricConfig
var Authentication authenticationConfig
var IndexQ indexQConfig
var CatalogQ catalogQConfig
var MonitorQ monitorQConfig
var TransferPutQ transferPutQConfig
var TransferGetQ transferGetQConfig
var ArchivePutQ archivePutQConfig
var ArchiveGetQ archiveGetQConfig
var LoggingQ loggingQConfig
var RPCPublisher rpcPublisherConfig

// This struct performs the unmarshalling from the YAML config file and then
// copies its fields to the globals above.
type configFile struct {
	General        generalConfig        `yaml:"general"`
	Fabric         fabricConfig         `yaml:"fabric"`
	Authentication authenticationConfig `yaml:"authentication"`
	IndexQ         indexQConfig         `yaml:"index_q"`
	CatalogQ       catalogQConfig       `yaml:"catalog_q"`
	MonitorQ       monitorQConfig       `yaml:"monitor_q"`
	TransferPutQ   transferPutQConfig   `yaml:"transfer_put_q"`
	TransferGetQ   transferGetQConfig   `yaml:"transfer_get_q"`
	ArchivePutQ    archivePutQConfig    `yaml:"archive_put_q"`
	ArchiveGetQ    archiveGetQConfig    `yaml:"archive_get_q"`
	LoggingQ       loggingQConfig       `yaml:"logging_q"`
	RPCPublisher   rpcPublisherConfig   `yaml:"rpc_publisher"`
}

// This helper locates and reads a configuration file, returning an error
// indicating success or failure. All environment variables of the form
// ${ENV_VAR} are expanded.
func readConfig(bytes []byte) error {
	// Before we do anything else, expand any provided environment variables.
	bytes = []byte(os.ExpandEnv(string(bytes)))

	conf := defaultConfigFile()
	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	// copy the config data into place
	General = conf.General
	Fabric = conf.Fabric
	Authentication = conf.Authentication
	IndexQ = conf.IndexQ
	CatalogQ = conf.CatalogQ
	MonitorQ = conf.MonitorQ
	TransferPutQ = conf.TransferPutQ
	TransferGetQ = conf.TransferGetQ
	ArchivePutQ = conf.ArchivePutQ
	ArchiveGetQ = conf.ArchiveGetQ
	LoggingQ = conf.LoggingQ
	RPCPublisher = conf.RPCPublisher

	return err
}

// returns a configFile populated with the defaults named throughout spec §6
func defaultConfigFile() configFile {
	var conf configFile
	conf.General.RetryDelays = []int{0, 30000, 60000, 3600000, 86400000, 432000000}
	conf.General.MaxRetries = 5
	conf.General.JournalDBPath = "nlds-journal.db"
	conf.Fabric.Exchange.Type = "topic"
	conf.Fabric.Exchange.Delayed = true
	conf.Fabric.Heartbeat = 30
	conf.Fabric.AdminPort = 15672
	conf.IndexQ.FilelistMaxLength = 1000
	conf.IndexQ.MessageThreshold = 500 * 1024 * 1024 * 1024
	conf.IndexQ.CheckPermissions = true
	conf.IndexQ.CheckFilesize = true
	conf.IndexQ.MaxFilesize = 500 * 1024 * 1024 * 1024
	conf.CatalogQ.DBEngine = "sqlite"
	conf.MonitorQ.DBEngine = "sqlite"
	conf.TransferPutQ.RequireSecure = true
	conf.TransferGetQ.RequireSecure = true
	conf.ArchivePutQ.ChunkSize = 5 * 1024 * 1024
	conf.ArchivePutQ.QueryChecksum = true
	conf.ArchivePutQ.Compress = true
	conf.ArchivePutQ.MaxAggregationSize = 10 * 1024 * 1024 * 1024
	conf.ArchiveGetQ.PrepareRequeueDelay = 30000
	conf.ArchiveGetQ.FullUnpack = true
	conf.LoggingQ.MaxBytes = 10 * 1024 * 1024
	conf.LoggingQ.BackupCount = 5
	conf.RPCPublisher.TimeLimit = 30
	return conf
}

// This helper validates the given configuration, returning an error that
// indicates success or failure.
func validateConfig() error {
	if General.MaxRetries <= 0 {
		return fmt.Errorf("Invalid max_retries: %d (must be positive)", General.MaxRetries)
	}
	if len(General.RetryDelays) == 0 {
		return fmt.Errorf("No retry_delays were provided!")
	}
	if Fabric.Exchange.Name == "" {
		return fmt.Errorf("No fabric exchange name was provided!")
	}
	if IndexQ.FilelistMaxLength <= 0 {
		return fmt.Errorf("Invalid index_q.filelist_max_length: %d (must be positive)",
			IndexQ.FilelistMaxLength)
	}
	return nil
}

// Initializes the NLDS configuration using the given YAML byte data.
func Init(yamlData []byte) error {
	// Read the configuration from our YAML file.
	err := readConfig(yamlData)
	if err != nil {
		return err
	}

	// Validate the configuration.
	return validateConfig()
}
