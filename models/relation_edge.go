package models

import (
	"time"
)

// RelationEdge ist eine berechnete Kante zwischen zwei Knoten für ein bestimmtes Maß.
// Column names follow what Gephi's relational importer expects (source, target, weight, type).
type RelationEdge struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Source   string       `json:"source" gorm:"index:idx_relation_edges_unique_edge,unique,priority:2;size:64;not null"`
	Target   string       `json:"target" gorm:"index:idx_relation_edges_unique_edge,unique,priority:3;size:64;not null"`
	Relation RelationType `json:"relation" gorm:"index:idx_relation_edges_unique_edge,unique,priority:1;size:32;not null"`
	Weight   float64      `json:"weight" gorm:"not null;check:chk_relation_edges_weight,weight >= 0"`
	Type     string       `json:"type" gorm:"size:16"`
}

// TableName gibt explizit den Tabellennamen an.
func (RelationEdge) TableName() string {
	return "relation_edges"
}
