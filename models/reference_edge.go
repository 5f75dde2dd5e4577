package models

import (
	"time"
)

// ReferenceEdge modelliert eine gerichtete Kante: Quelle zitiert Ziel (A cites B).
// The target does not have to be a sampled node.
type ReferenceEdge struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Source string `json:"source" gorm:"index:idx_reference_edges_unique_edge,unique,priority:1;size:64;not null"`
	Target string `json:"target" gorm:"index:idx_reference_edges_unique_edge,unique,priority:2;index;size:64;not null"`
}

func (ReferenceEdge) TableName() string { return "reference_edges" }

// Key is the dedup key of the edge.
func (e ReferenceEdge) Key() [2]string { return [2]string{e.Source, e.Target} }
