// These tests must be run serially, since the journal is a single
// goroutine-backed instance.
package journal

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestInitAndFinalize()
	tester.TestRecordSucceededOutcome()
	tester.TestRecordFailedOutcome()
	tester.TestRecordsFiltersByTimeRange()
}

func TestMain(m *testing.M) {
	setup()
	status := m.Run()
	breakdown()
	os.Exit(status)
}

var testingDir string
var testDBPath string

func setup() {
	var err error
	testingDir, err = os.MkdirTemp(os.TempDir(), "nlds-journal-tests-")
	if err != nil {
		log.Panicf("couldn't create testing directory: %s", err)
	}
	testDBPath = filepath.Join(testingDir, "journal.db")
}

func breakdown() {
	if IsOpen() {
		Finalize()
	}
	if testingDir != "" {
		os.RemoveAll(testingDir)
	}
}

type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestInitAndFinalize() {
	assert := assert.New(t.Test)

	assert.False(IsOpen())
	assert.NoError(Init(testDBPath))
	assert.True(IsOpen())
	assert.NoError(Finalize())
	assert.False(IsOpen())
}

func (t *SerialTests) TestRecordSucceededOutcome() {
	assert := assert.New(t.Test)
	assert.NoError(Init(testDBPath))

	record := Record{
		TransactionID: uuid.New(),
		SubID:         uuid.New(),
		Worker:        "transfer-put",
		StartTime:     time.Now().Add(-time.Minute),
		StopTime:      time.Now(),
		Status:        "succeeded",
		NumCompleted:  12,
	}
	assert.NoError(RecordOutcome(record))
	assert.NoError(Finalize())
}

func (t *SerialTests) TestRecordFailedOutcome() {
	assert := assert.New(t.Test)
	assert.NoError(Init(testDBPath))

	record := Record{
		TransactionID: uuid.New(),
		SubID:         uuid.New(),
		Worker:        "archive-put",
		StartTime:     time.Now().Add(-time.Minute),
		StopTime:      time.Now(),
		Status:        "failed",
		NumFailed:     3,
	}
	assert.NoError(RecordOutcome(record))
	assert.NoError(Finalize())

	assert.Error(RecordOutcome(Record{Status: "bogus"}))
}

func (t *SerialTests) TestRecordsFiltersByTimeRange() {
	assert := assert.New(t.Test)
	assert.NoError(Init(testDBPath))

	base := time.Now().Add(time.Hour)
	inRange := Record{
		TransactionID: uuid.New(),
		SubID:         uuid.New(),
		Worker:        "indexer",
		StartTime:     base,
		StopTime:      base.Add(time.Second),
		Status:        "succeeded",
		NumCompleted:  1,
	}
	outOfRange := Record{
		TransactionID: uuid.New(),
		SubID:         uuid.New(),
		Worker:        "indexer",
		StartTime:     base.Add(24 * time.Hour),
		StopTime:      base.Add(24*time.Hour + time.Second),
		Status:        "succeeded",
		NumCompleted:  1,
	}
	assert.NoError(RecordOutcome(inRange))
	assert.NoError(RecordOutcome(outOfRange))

	records, err := Records(base.Add(-time.Second), base.Add(time.Minute))
	assert.NoError(err)
	found := false
	for _, r := range records {
		if r.SubID == inRange.SubID {
			found = true
		}
		assert.NotEqual(outOfRange.SubID, r.SubID)
	}
	assert.True(found)

	assert.NoError(Finalize())
}
