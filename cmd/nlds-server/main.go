// Command nlds-server is the single-binary server entrypoint, mirroring the
// teacher's root main.go: read a YAML config file, bring up the catalog and
// monitor stores and the journal, declare every queue spec §4.1 names, and
// run one consumer goroutine per queue until a shutdown signal arrives.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/nlds-storage/nlds/auth"
	"github.com/nlds-storage/nlds/catalog"
	"github.com/nlds-storage/nlds/config"
	"github.com/nlds-storage/nlds/fabric"
	"github.com/nlds-storage/nlds/journal"
	"github.com/nlds-storage/nlds/monitor"
	"github.com/nlds-storage/nlds/tape"
)

func usage() {
	fmt.Fprintf(os.Stderr, "%s: usage:\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s <config_file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "See SPEC_FULL.md §6 for details on config files.\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	configFile := os.Args[1]

	log.Printf("Reading configuration from '%s'...\n", configFile)
	data, err := os.ReadFile(configFile)
	if err != nil {
		log.Panicf("Couldn't read %s: %s\n", configFile, err.Error())
	}
	if err := config.Init(data); err != nil {
		log.Panicf("Couldn't initialize the configuration: %s\n", err.Error())
	}

	if err := journal.Init(config.General.JournalDBPath); err != nil {
		log.Panicf("Couldn't open the journal: %s\n", err.Error())
	}

	authenticator, err := buildAuthenticator()
	if err != nil {
		log.Panicf("Couldn't build the authenticator: %s\n", err.Error())
	}

	catalogStore, err := catalog.NewStore(config.CatalogQ.DBEngine, config.CatalogQ.DBOptions)
	if err != nil {
		log.Panicf("Couldn't open the catalog store: %s\n", err.Error())
	}
	monitorStore, err := monitor.NewStore(config.MonitorQ.DBEngine, config.MonitorQ.DBOptions)
	if err != nil {
		log.Panicf("Couldn't open the monitor store: %s\n", err.Error())
	}

	tapePut, err := tape.New(tape.Options{
		BaseURL:       config.ArchivePutQ.TapeURL,
		Pool:          config.ArchivePutQ.TapePool,
		RequireSecure: config.TransferPutQ.RequireSecure,
	})
	if err != nil {
		log.Panicf("Couldn't build the archive-put tape client: %s\n", err.Error())
	}
	tapeGet, err := tape.New(tape.Options{
		BaseURL:       config.ArchiveGetQ.TapeURL,
		Pool:          config.ArchiveGetQ.TapePool,
		RequireSecure: config.TransferGetQ.RequireSecure,
	})
	if err != nil {
		log.Panicf("Couldn't build the archive-get tape client: %s\n", err.Error())
	}

	brokerLog := journal.NewLogger("fabric")
	broker := fabric.NewBroker(brokerLog)
	if err := declareQueues(broker); err != nil {
		log.Panicf("Couldn't declare queues: %s\n", err.Error())
	}
	if err := declareQueryQueue(broker); err != nil {
		log.Panicf("Couldn't declare the query queue: %s\n", err.Error())
	}

	svc := &service{
		broker:        broker,
		catalog:       catalogStore,
		monitor:       monitorStore,
		auth:          authenticator,
		roleChecker:   auth.RoleChecker{Authenticator: authenticator},
		tapePut:       tapePut,
		tapeGet:       tapeGet,
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, queueName := range queueNames {
		queueName := queueName
		handler := svc.withMonitoring(svc.handlerFor(queueName))
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := journal.NewLogger(queueName)
			if err := fabric.RunConsumer(broker, queueName, handler, l, stop); err != nil {
				l.Error("consumer exited", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.runArchiveTrigger(stop)
	}()

	queryServer := fabric.NewRPCServer(broker, queryQueueName, journal.NewLogger(queryQueueName))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := queryServer.Serve(svc.answerQuery, stop); err != nil {
			journal.NewLogger(queryQueueName).Error("query server exited", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	<-sigChan

	close(stop)
	broker.Close()

	// Give consumers up to 30 seconds to finish their current delivery
	// before falling through to Finalize anyway.
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
	}

	journal.Finalize()
	log.Println("Shutting down")
	os.Exit(0)
}

// buildAuthenticator constructs the Authenticator named by
// config.Authentication.Backend, defaulting to auth.DefaultAuthenticator
// when no backend is configured (spec §9's "dynamic dispatch of
// authenticators").
func buildAuthenticator() (auth.Authenticator, error) {
	switch config.Authentication.Backend {
	case "", "default":
		return auth.DefaultAuthenticator{}, nil
	case "token":
		keyStr := config.Authentication.Options["fernet_key"]
		tokenFile := config.Authentication.Options["token_file"]
		key, err := fernet.DecodeKey(keyStr)
		if err != nil {
			return nil, fmt.Errorf("decoding authentication.options.fernet_key: %w", err)
		}
		return auth.LoadTokenFile(tokenFile, key)
	default:
		return nil, fmt.Errorf("unrecognised authentication backend %q", config.Authentication.Backend)
	}
}

// service holds everything a stage handler needs: the broker it publishes
// back onto, the two SQL-backed stores, the injected auth capability, and
// the two tape clients (archive-put and archive-get may point at different
// pools).
type service struct {
	broker      *fabric.Broker
	catalog     catalog.Store
	monitor     monitor.Store
	auth        auth.Authenticator
	roleChecker auth.RoleChecker
	tapePut     *tape.Client
	tapeGet     *tape.Client
}
