package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID       = "job_id"
	KeyWorkType    = "work_type"
	KeyJobPriority = "job_priority"
	KeyJobState    = "job_state"
	KeyEngine      = "engine"
	KeyCompany     = "company"
	KeyURL         = "url"
	KeyStage       = "stage"
	KeyDimension   = "dimension"
	KeyFileID      = "file_id"
	KeyDurationMS  = "duration_ms"
	KeyAttempt     = "attempt"
	KeyError       = "error"
	KeyMethod      = "method"
	KeyPath        = "path"
	KeyStatus      = "status"
	KeyRemoteAddr  = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func WorkType(t string) slog.Attr     { return slog.String(KeyWorkType, t) }
func JobPriority(p int) slog.Attr     { return slog.Int(KeyJobPriority, p) }
func JobState(s string) slog.Attr     { return slog.String(KeyJobState, s) }
func Engine(e string) slog.Attr       { return slog.String(KeyEngine, e) }
func Company(c string) slog.Attr      { return slog.String(KeyCompany, c) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Dimension(d string) slog.Attr    { return slog.String(KeyDimension, d) }
func FileID(id string) slog.Attr      { return slog.String(KeyFileID, id) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
