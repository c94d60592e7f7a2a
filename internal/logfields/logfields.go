package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyItemID         = "item_id"
	KeyEventType      = "event_type"
	KeyQueueKey       = "queue_key"
	KeyRetryCount     = "retry_count"
	KeyBuildID        = "build_id"
	KeyBuildKind      = "build_kind"
	KeyBuildState     = "build_state"
	KeyModuleID       = "module_id"
	KeyModuleBuildID  = "module_build_id"
	KeyBranchID       = "branch_id"
	KeyRepo           = "repository"
	KeyBranch         = "branch"
	KeyInterProjectID = "inter_project_build_id"
	KeyCluster        = "cluster"
	KeyHandler        = "handler"
	KeyInstanceID     = "instance_id"
	KeyLane           = "lane"
	KeyDurationMS     = "duration_ms"
	KeyCount          = "count"
	KeyPath           = "path"
	KeyError          = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func ItemID(id int64) slog.Attr         { return slog.Int64(KeyItemID, id) }
func EventType(t string) slog.Attr      { return slog.String(KeyEventType, t) }
func QueueKey(k string) slog.Attr       { return slog.String(KeyQueueKey, k) }
func RetryCount(n int) slog.Attr        { return slog.Int(KeyRetryCount, n) }
func BuildID(id int64) slog.Attr        { return slog.Int64(KeyBuildID, id) }
func BuildKind(k string) slog.Attr      { return slog.String(KeyBuildKind, k) }
func BuildState(s string) slog.Attr     { return slog.String(KeyBuildState, s) }
func ModuleID(id int64) slog.Attr       { return slog.Int64(KeyModuleID, id) }
func ModuleBuildID(id int64) slog.Attr  { return slog.Int64(KeyModuleBuildID, id) }
func BranchID(id int64) slog.Attr       { return slog.Int64(KeyBranchID, id) }
func Repository(r string) slog.Attr     { return slog.String(KeyRepo, r) }
func Branch(b string) slog.Attr         { return slog.String(KeyBranch, b) }
func InterProjectID(id int64) slog.Attr { return slog.Int64(KeyInterProjectID, id) }
func Cluster(name string) slog.Attr     { return slog.String(KeyCluster, name) }
func Handler(name string) slog.Attr     { return slog.String(KeyHandler, name) }
func InstanceID(id string) slog.Attr    { return slog.String(KeyInstanceID, id) }
func Lane(name string) slog.Attr        { return slog.String(KeyLane, name) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Count(n int) slog.Attr             { return slog.Int(KeyCount, n) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
