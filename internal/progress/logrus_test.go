package progress

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusObserver_LevelsAndFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	observer := NewLogrusObserver(logger)

	observer.Major("fetching journals", 4)
	observer.Minor(2, "journal 2 of 4", 4)
	observer.Detail(1, "downloading cover image")
	observer.Debug("resolved foreign key", 2)

	require.Len(t, hook.AllEntries(), 4)
	assert.Equal(t, "fetching journals", hook.AllEntries()[0].Message)
	assert.Equal(t, 4, hook.AllEntries()[0].Data["length"])
	assert.Equal(t, 2, hook.AllEntries()[1].Data["current"])
}

func TestLogrusObserver_ReportErrorContinuesByDefault(t *testing.T) {
	logger, hook := test.NewNullLogger()
	observer := NewLogrusObserver(logger)

	decision := observer.ReportError(errors.New("server returned 500"), ErrorContext{
		Server:          "source",
		URL:             "/journals/1/sections/",
		Stage:           "fetch",
		NodeType:        "sections",
		SourceRecordKey: "sections:1",
	})

	assert.Equal(t, Continue, decision)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "source", entry.Data["server"])
	assert.Equal(t, "sections:1", entry.Data["source_record_key"])
}

func TestLogrusObserver_ReportErrorAbortsWhenConfigured(t *testing.T) {
	logger, _ := test.NewNullLogger()
	observer := NewLogrusObserver(logger)
	observer.AbortOnError = true

	decision := observer.ReportError(errors.New("transport failure"), ErrorContext{})

	assert.Equal(t, Abort, decision)
}
