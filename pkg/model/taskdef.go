package model

// SchemaDef attaches a JSON Schema to a task definition.
type SchemaDef struct {
	Name    string                 `json:"name,omitempty"`
	Type    string                 `json:"type"`
	Version int                    `json:"version,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// TaskDef is the server-side task definition a worker may register at
// startup when register_task_def is enabled.
type TaskDef struct {
	Name                   string     `json:"name"`
	Description            string     `json:"description,omitempty"`
	RetryCount             int        `json:"retryCount,omitempty"`
	TimeoutSeconds         int64      `json:"timeoutSeconds,omitempty"`
	ResponseTimeoutSeconds int64      `json:"responseTimeoutSeconds,omitempty"`
	OwnerEmail             string     `json:"ownerEmail,omitempty"`
	InputSchema            *SchemaDef `json:"inputSchema,omitempty"`
	EnforceSchema          bool       `json:"enforceSchema,omitempty"`
}
