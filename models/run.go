package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run status values.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Run speichert das Ergebnis eines Sampler- oder Generator-Laufs,
// inklusive der übersprungenen und zurückgestellten Identifier.
type Run struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	StartedAt  time.Time  `json:"started_at" gorm:"index"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Operation string `json:"operation" gorm:"index;size:32"` // seed, expand, generate, cluster
	Argument  string `json:"argument,omitempty" gorm:"size:64"`
	Status    string `json:"status" gorm:"index;size:16"`
	Error     string `json:"error,omitempty" gorm:"type:text"`

	Queried  int `json:"queried"`
	NewNodes int `json:"new_nodes"`
	NewEdges int `json:"new_edges"`

	Deferred datatypes.JSON `json:"deferred,omitempty"`
	Skipped  datatypes.JSON `json:"skipped,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Run) TableName() string {
	return "runs"
}
