package mocklogger

import (
	"sync"
	"testing"

	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/stretchr/testify/assert"
)

func TestMockLoggerRecordsCalls(t *testing.T) {
	logger := NewTestLogger()

	var l ulogger.Logger = logger
	l.Infof("node%d height %d", 0, 10)
	l.New("child").Warnf("regression")
	l.Duplicate().Errorf("boom")

	logger.AssertNumberOfCalls(t, "Infof", 1)
	logger.AssertNumberOfCalls(t, "Warnf", 1)
	logger.AssertNumberOfCalls(t, "Errorf", 1)
	assert.True(t, logger.Contains("node0 height 10"))
	assert.False(t, logger.Contains("node1"))

	logger.Reset()
	assert.Equal(t, 0, logger.Calls("Infof"))
	assert.False(t, logger.Contains("boom"))
}

func TestMockLoggerConcurrent(t *testing.T) {
	logger := NewTestLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			logger.Debugf("tick")
		}()
	}

	wg.Wait()

	logger.AssertNumberOfCalls(t, "Debugf", 50)
}
