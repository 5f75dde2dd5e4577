package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Node repräsentiert eine Publikation im Zitationsnetzwerk.
// The id is the source's record identifier (ADS bibcode) and never changes.
type Node struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Gephi uses "label" as the display name of a node.
	Label          string         `json:"label"`
	Title          string         `json:"title,omitempty"`
	Authors        string         `json:"authors,omitempty"`
	Year           int            `json:"year,omitempty" gorm:"index"`
	Publication    string         `json:"publication,omitempty"`
	DOI            string         `json:"doi,omitempty" gorm:"column:doi"`
	CitationCount  int            `json:"citation_count"`
	ReferenceCount int            `json:"reference_count"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`

	ProcessedReferences bool `json:"processed_references" gorm:"index;default:false"`
	ProcessedCitations  bool `json:"processed_citations" gorm:"index;default:false"`
	Depth               int  `json:"depth" gorm:"index;default:0"`
	ClusterID           *int `json:"cluster_id,omitempty" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (Node) TableName() string {
	return "nodes"
}

// Processed reports the processed flag for the given direction.
func (n *Node) Processed(d Direction) bool {
	if d == DirectionCitations {
		return n.ProcessedCitations
	}
	return n.ProcessedReferences
}

// YearFromID returns the publication year encoded in the first four characters of
// a bibcode, or 0 if they are not digits.
func YearFromID(id string) int {
	if len(id) < 4 {
		return 0
	}
	y, err := strconv.Atoi(id[:4])
	if err != nil || y < 0 {
		return 0
	}
	return y
}

// YearInterval is an inclusive year range. A zero bound is open.
type YearInterval struct {
	Start int
	End   int
}

// Contains reports whether the bibcode id falls into the interval. Ids without a
// parsable year only pass an unbounded interval.
func (iv YearInterval) Contains(id string) bool {
	if iv.Start == 0 && iv.End == 0 {
		return true
	}
	y := YearFromID(id)
	if y == 0 {
		return false
	}
	if iv.Start != 0 && y < iv.Start {
		return false
	}
	if iv.End != 0 && y > iv.End {
		return false
	}
	return true
}
