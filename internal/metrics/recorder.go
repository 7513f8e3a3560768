package metrics

import "time"

// ResultLabel enumerates job result categories for counters.
type ResultLabel string

const (
	ResultCompleted ResultLabel = "completed"
	ResultFailed    ResultLabel = "failed"
	ResultCancelled ResultLabel = "cancelled"
)

// Recorder defines observability hooks for queue, backup, and adapter metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveJobDuration(workType string, d time.Duration)
	IncJobResult(workType string, result ResultLabel)
	SetQueueDepth(workType string, n int)
	IncBackupSave(engine string)
	IncUploadResult(engine string, success bool)
	ObserveAICallDuration(dimension string, d time.Duration, success bool)
	IncDiscoverySource(source string, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveJobDuration(string, time.Duration)             {}
func (NoopRecorder) IncJobResult(string, ResultLabel)                     {}
func (NoopRecorder) SetQueueDepth(string, int)                            {}
func (NoopRecorder) IncBackupSave(string)                                 {}
func (NoopRecorder) IncUploadResult(string, bool)                         {}
func (NoopRecorder) ObserveAICallDuration(string, time.Duration, bool)    {}
func (NoopRecorder) IncDiscoverySource(string, bool)                      {}
