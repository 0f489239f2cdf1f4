package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Worker property names as they appear in environment keys.
const (
	PropPollIntervalMillis = "poll_interval_millis"
	PropThreadCount        = "thread_count"
	PropDomain             = "domain"
	PropWorkerID           = "worker_id"
	PropPollTimeout        = "poll_timeout"
	PropLeaseExtendEnabled = "lease_extend_enabled"
	PropPaused             = "paused"
	PropRegisterTaskDef    = "register_task_def"
	PropOverwriteTaskDef   = "overwrite_task_def"
	PropStrictSchema       = "strict_schema"
)

const (
	workerEnvPrefix = "conductor.worker."
	globalEnvScope  = "all"
)

// WorkerProperties is the fully resolved configuration of one worker.
type WorkerProperties struct {
	PollIntervalMillis int
	ThreadCount        int
	Domain             string
	WorkerID           string
	PollTimeoutMillis  int
	LeaseExtendEnabled bool
	Paused             bool
	RegisterTaskDef    bool
	OverwriteTaskDef   bool
	StrictSchema       bool
}

// DefaultWorkerProperties returns the code-level defaults that apply when
// neither a worker-specific nor a global environment variable is set.
func DefaultWorkerProperties() WorkerProperties {
	return WorkerProperties{
		PollIntervalMillis: 100,
		ThreadCount:        1,
		WorkerID:           defaultWorkerID(),
		PollTimeoutMillis:  100,
		LeaseExtendEnabled: true,
		OverwriteTaskDef:   true,
	}
}

func defaultWorkerID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fmt.Sprintf("worker-%s", uuid.New().String()[:8])
}

// Resolver resolves worker properties from three tiers, highest priority
// first: conductor.worker.<name>.<prop>, conductor.worker.all.<prop>, then
// the code default supplied at registration. Environment lookups are live,
// so env-only properties such as paused can be toggled at runtime.
type Resolver struct {
	v     *viper.Viper
	mu    sync.Mutex
	bound map[string]struct{}
}

// NewResolver creates a resolver backed by a private viper instance.
func NewResolver() *Resolver {
	v := viper.New()
	v.AllowEmptyEnv(false)
	return &Resolver{
		v:     v,
		bound: make(map[string]struct{}),
	}
}

// Resolve merges the environment tiers over the supplied code defaults for
// one task definition name.
func (r *Resolver) Resolve(taskDefName string, defaults WorkerProperties) WorkerProperties {
	props := defaults
	if props.WorkerID == "" {
		props.WorkerID = defaultWorkerID()
	}

	props.PollIntervalMillis = r.intProp(taskDefName, PropPollIntervalMillis, props.PollIntervalMillis)
	props.ThreadCount = r.intProp(taskDefName, PropThreadCount, props.ThreadCount)
	props.Domain = r.stringProp(taskDefName, PropDomain, props.Domain)
	props.WorkerID = r.stringProp(taskDefName, PropWorkerID, props.WorkerID)
	props.PollTimeoutMillis = r.intProp(taskDefName, PropPollTimeout, props.PollTimeoutMillis)
	props.LeaseExtendEnabled = r.boolProp(taskDefName, PropLeaseExtendEnabled, props.LeaseExtendEnabled)
	props.RegisterTaskDef = r.boolProp(taskDefName, PropRegisterTaskDef, props.RegisterTaskDef)
	props.OverwriteTaskDef = r.boolProp(taskDefName, PropOverwriteTaskDef, props.OverwriteTaskDef)
	props.StrictSchema = r.boolProp(taskDefName, PropStrictSchema, props.StrictSchema)

	// paused has no code-level tier; it is env only.
	props.Paused = r.boolProp(taskDefName, PropPaused, false)

	return props
}

// Paused re-reads the pause flag for a worker. Called every poll cycle so
// operators can pause and resume a running worker without a restart.
func (r *Resolver) Paused(taskDefName string) bool {
	return r.boolProp(taskDefName, PropPaused, false)
}

func (r *Resolver) stringProp(taskDefName, prop, fallback string) string {
	if raw, ok := r.lookup(taskDefName, prop); ok {
		return raw
	}
	return fallback
}

func (r *Resolver) intProp(taskDefName, prop string, fallback int) int {
	raw, ok := r.lookup(taskDefName, prop)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func (r *Resolver) boolProp(taskDefName, prop string, fallback bool) bool {
	raw, ok := r.lookup(taskDefName, prop)
	if !ok {
		return fallback
	}
	b, err := ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}

// lookup returns the raw value for prop, worker tier first then global.
func (r *Resolver) lookup(taskDefName, prop string) (string, bool) {
	for _, key := range []string{
		workerEnvPrefix + taskDefName + "." + prop,
		workerEnvPrefix + globalEnvScope + "." + prop,
	} {
		r.bind(key)
		if r.v.IsSet(key) {
			return r.v.GetString(key), true
		}
	}
	return "", false
}

// bind registers the env binding for a dotted key once. The env variable
// name is the key itself, matching the conductor convention.
func (r *Resolver) bind(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bound[key]; ok {
		return
	}
	_ = r.v.BindEnv(key, key)
	r.bound[key] = struct{}{}
}

// ParseBool parses the boolean forms accepted in worker configuration:
// true|1|yes and false|0|no, case-insensitive.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", raw)
}
