package logger

import (
	"github.com/maxaizer/job-aggregator/internal/metrics"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const errorTypeOther = "other"

var errorTypes = []string{
	ErrorTypeDb,
	ErrorTypeQueue,
	ErrorTypeConnector,
	ErrorTypeScoring,
	ErrorTypeRedis,
	ErrorTypeParse,
}

// errorsHook counts logged failures by error type. Warnings are counted too:
// degraded searches and retried store errors are only logged at that level.
type errorsHook struct{}

func (h *errorsHook) Fire(entry *log.Entry) error {
	metrics.ErrorsCounter.WithLabelValues(errorType(entry), entry.Level.String()).Inc()
	return nil
}

func (h *errorsHook) Levels() []log.Level {
	return []log.Level{
		log.WarnLevel,
		log.ErrorLevel,
		log.FatalLevel,
		log.PanicLevel,
	}
}

// errorType keeps the label set bounded: anything outside the known types
// is reported as "other".
func errorType(entry *log.Entry) string {
	value, ok := entry.Data[ErrorTypeField].(string)
	if !ok || !lo.Contains(errorTypes, value) {
		return errorTypeOther
	}
	return value
}

func addErrorsHook() {
	log.AddHook(&errorsHook{})
}
