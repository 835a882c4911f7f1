package db

import (
	"errors"
	"fmt"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

// DistanceCosine is cosine distance; KNN scores are converted back to similarity.
const DistanceCosine DistanceMetric = "COSINE"

// TagField is an exact-match TAG attribute of an indexed hash.
type TagField struct {
	Name string
	// Separator splits multi-value tags. Source paths may contain commas,
	// so chunk indexes use "|".
	Separator     string
	CaseSensitive bool
}

// VectorField is the FLOAT32 HNSW attribute holding the chunk embedding.
type VectorField struct {
	Name        string
	Dim         int
	Distance    DistanceMetric
	M           int // max edges per node, server default when 0
	EFConstruct int // build-time candidate list size, server default when 0
}

// IndexDefinition describes an FT index over the hashes under one key prefix.
// Text and page are stored in the hash but not indexed: they are only read back.
type IndexDefinition struct {
	Name   string
	Prefix string
	Tags   []TagField
	Vector VectorField
}

// Validate checks that the definition can be turned into FT.CREATE.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if idx.Prefix == "" {
		return errors.New("key prefix is required")
	}
	if idx.Vector.Name == "" {
		return errors.New("vector field name is required")
	}
	if idx.Vector.Dim <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", idx.Vector.Dim)
	}

	seen := map[string]bool{idx.Vector.Name: true}
	for _, t := range idx.Tags {
		if t.Name == "" {
			return errors.New("tag field name is required")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate field name: %s", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}

// IndexInfo is the subset of FT.INFO used to decide index readiness.
type IndexInfo struct {
	Name           string
	NumDocs        int64
	Indexing       bool    // Redis: background indexing still running
	PercentIndexed float64 // Redis: 0..1, -1 when not reported
	State          string  // valkey-search: "ready", "backfill_in_progress", ...
}

// Ready reports whether the index accepts queries over all existing keys.
func (i *IndexInfo) Ready() bool {
	if i.State != "" {
		return i.State == "ready"
	}
	if i.Indexing {
		return false
	}
	return i.PercentIndexed < 0 || i.PercentIndexed >= 1
}
