package domain

import (
	"encoding/json"
	"time"
)

type GenerationRequest struct {
	Config GenerationConfig `json:"config" yaml:"config"`
	Tables []TableSpec      `json:"tables" yaml:"tables"`
}

type GenerationConfig struct {
	JobName       string `json:"job_name" yaml:"job_name"`
	GlobalContext string `json:"global_context,omitempty" yaml:"global_context,omitempty"`
	Locale        string `json:"locale,omitempty" yaml:"locale,omitempty"`
	OutputFormat  string `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	Seed          *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

type TableSpec struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	RowsCount int         `json:"rows_count" yaml:"rows_count"`
	Fields    []FieldSpec `json:"fields" yaml:"fields"`
}

type FieldSpec struct {
	Name         string                 `json:"name" yaml:"name"`
	Kind         FieldKind              `json:"type" yaml:"type"`
	Params       map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	IsUnique     bool                   `json:"is_unique,omitempty" yaml:"is_unique,omitempty"`
}

type FieldKind string

const (
	FieldKindFaker        FieldKind = "faker"
	FieldKindLLM          FieldKind = "llm"
	FieldKindDistribution FieldKind = "distribution"
	FieldKindForeignKey   FieldKind = "foreign_key"
	FieldKindInteger      FieldKind = "integer"
	FieldKindBoolean      FieldKind = "boolean"
	FieldKindRegex        FieldKind = "regex"
	FieldKindTimestamp    FieldKind = "timestamp"
	FieldKindTemplate     FieldKind = "template"
)

// Row is one generated record keyed by field name.
type Row map[string]interface{}

const GlobalContextKey = "global_context"

const MaxRowsPerTable = 100000

const (
	OutputFormatJSON   = "json"
	OutputFormatCSV    = "csv"
	OutputFormatSQL    = "sql"
	OutputFormatSQLite = "sqlite"
)

type Job struct {
	ID              string          `json:"id"`
	Name            string          `json:"job_name"`
	Status          JobStatus       `json:"status"`
	Progress        int             `json:"progress"`
	TotalRows       int64           `json:"total_rows"`
	ConfigHash      string          `json:"config_hash,omitempty"`
	Request         json.RawMessage `json:"config,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

func IsValidJobStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
