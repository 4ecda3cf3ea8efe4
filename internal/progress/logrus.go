package progress

import (
	"github.com/sirupsen/logrus"
)

// LogrusObserver reports progress through structured log lines, the way
// the teacher's services report operational state
// (internal/services/job_queue_service.go's logger.WithFields idiom). It
// stands in for a full interactive terminal renderer, whose exact
// rendering spec.md §1 scopes out; this is a reasonable non-interactive
// default that still surfaces every notification level.
type LogrusObserver struct {
	logger *logrus.Logger
	// AbortOnError, when true, asks the caller to Abort instead of
	// Continue on every reported error. Operators running unattended CI
	// migrations typically want the opposite (keep going, review the log
	// afterward), so this defaults to false.
	AbortOnError bool
}

// NewLogrusObserver returns an Observer that logs every notification via
// logger.
func NewLogrusObserver(logger *logrus.Logger) *LogrusObserver {
	return &LogrusObserver{logger: logger}
}

func (o *LogrusObserver) Major(message string, length int) {
	o.logger.WithFields(logrus.Fields{"length": length}).Info(message)
}

func (o *LogrusObserver) Minor(current int, message string, length int) {
	o.logger.WithFields(logrus.Fields{"current": current, "length": length}).Info(message)
}

func (o *LogrusObserver) Detail(current int, message string) {
	o.logger.WithFields(logrus.Fields{"current": current}).Debug(message)
}

func (o *LogrusObserver) Debug(message string, level int) {
	o.logger.WithFields(logrus.Fields{"level": level}).Debug(message)
}

func (o *LogrusObserver) ReportError(err error, errCtx ErrorContext) Decision {
	o.logger.WithFields(logrus.Fields{
		"server":            errCtx.Server,
		"url":               errCtx.URL,
		"destination_file":  errCtx.DestinationFile,
		"stage":             errCtx.Stage,
		"node_type":         errCtx.NodeType,
		"source_record_key": errCtx.SourceRecordKey,
	}).WithError(err).Warn("transfer item failed")

	if o.AbortOnError {
		return Abort
	}
	return Continue
}

var _ Observer = (*LogrusObserver)(nil)
