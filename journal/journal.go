// Package journal provides two facilities: structured per-stage logging
// (logging.go) and a queryable, time-ranged audit trail of completed and
// failed sub-transactions (this file), grounded file-for-file on the
// teacher's own-goroutine, bbolt-backed transfer journal.
package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Record is one audited outcome for a sub-transaction: which worker
// finished processing it, how many files succeeded or failed, and when.
// Unlike the teacher's Record, there is no Manifest field -- NLDS has no
// frictionless-data payload; file-level detail lives in the Monitor's
// FailedFile/Warning rows (spec §3), and this journal exists purely for
// after-the-fact audit of sub-transaction throughput.
type Record struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	SubID         uuid.UUID `json:"sub_id"`
	Worker        string    `json:"worker"`
	StartTime     time.Time `json:"start_time"`
	StopTime      time.Time `json:"stop_time"`
	Status        string    `json:"status"` // "succeeded", "failed", or "partial"
	NumCompleted  int       `json:"num_completed"`
	NumFailed     int       `json:"num_failed"`
}

// Init starts the journal's goroutine against the bbolt file at dbPath.
func Init(dbPath string) error {
	if !IsOpen() {
		go journalProcess(dbPath)
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// Finalize saves and closes the journal, if it's open.
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// IsOpen reports whether the journal is open for reading or writing.
func IsOpen() bool {
	if channels_.Open {
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second):
			closeChannels()
			return false
		}
	}
	return false
}

// RecordOutcome journals a completed sub-transaction.
func RecordOutcome(record Record) error {
	switch record.Status {
	case "succeeded", "failed", "partial":
	default:
		return &NewRecordError{Id: record.SubID, Message: fmt.Sprintf("invalid status: %s", record.Status)}
	}

	if !IsOpen() {
		return &NotOpenError{}
	}

	channels_.Input.CreateRecord <- record
	return <-channels_.Output.Error
}

// Records retrieves records whose StartTime falls within [start, stop].
func Records(start, stop time.Time) ([]Record, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchRecords <- TimeRange{Start: start, Stop: stop}
	select {
	case records := <-channels_.Output.Records:
		return records, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

//-----------
// Internals
//-----------

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool
	Input struct {
		CreateRecord chan Record
		CheckIfOpen  chan struct{}
		FetchRecords chan TimeRange
		Shutdown     chan struct{}
	}
	Output struct {
		Records chan []Record
		Error   chan error
		IsOpen  chan bool
	}
}

func journalProcess(dbPath string) {
	db, err := bolt.Open(filepath.Join(filepath.Dir(dbPath), filepath.Base(dbPath)), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		openChannels()
		channels_.Output.Error <- &CantOpenError{Message: err.Error()}
		return
	}

	db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("sub_transactions"))
		return err
	})

	openChannels()

	running := true
	for running {
		select {
		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true

		case record := <-channels_.Input.CreateRecord:
			channels_.Output.Error <- createRecord(db, record)

		case timeRange := <-channels_.Input.FetchRecords:
			records, err := fetchRecords(db, timeRange.Start, timeRange.Stop)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case <-channels_.Input.Shutdown:
			if err := db.Close(); err != nil {
				channels_.Output.Error <- &CantCloseError{Message: err.Error()}
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateRecord = make(chan Record)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchRecords = make(chan TimeRange)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Records = make(chan []Record)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateRecord)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchRecords)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Records)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

func createRecord(db *bolt.DB, record Record) error {
	key := fmt.Sprintf("%s/%s", record.StartTime.Format(time.RFC3339Nano), record.SubID.String())

	tx, err := db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	jsonBytes, err := json.Marshal(&record)
	if err != nil {
		return &NewRecordError{Id: record.SubID, Message: err.Error()}
	}

	bucket := tx.Bucket([]byte("sub_transactions"))
	if err := bucket.Put([]byte(key), jsonBytes); err != nil {
		return err
	}

	return tx.Commit()
}

func fetchRecords(db *bolt.DB, start, stop time.Time) ([]Record, error) {
	records := make([]Record, 0)
	err := db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte("sub_transactions")).Cursor()

		startKey := []byte(start.Format(time.RFC3339Nano))
		stopKey := []byte(stop.Format(time.RFC3339Nano) + "\xff")

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, stopKey) <= 0; k, v = c.Next() {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}
