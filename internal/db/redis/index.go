package redis

import (
	"context"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if serverErrorContains(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// ListIndexes returns the names of all FT indexes via FT._LIST.
func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	cmd := s.b().Arbitrary("FT._LIST").Build()
	names, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpListIndexes, Err: err}
	}
	return names, nil
}

// IndexInfo reads the readiness-related fields of FT.INFO.
func (s *Store) IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return parseIndexInfo(name, raw), nil
}

// parseIndexInfo walks the flat [key, value, ...] FT.INFO reply; nested values are skipped.
func parseIndexInfo(name string, raw []rueidis.RedisMessage) *db.IndexInfo {
	info := &db.IndexInfo{Name: name, PercentIndexed: -1}
	for i := 0; i+1 < len(raw); i += 2 {
		key, ok := scalarString(raw[i])
		if !ok {
			continue
		}
		val, ok := scalarString(raw[i+1])
		if !ok {
			continue
		}
		switch key {
		case "index_name":
			info.Name = val
		case "num_docs":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				info.NumDocs = n
			}
		case "indexing":
			info.Indexing = val != "0" && val != ""
		case "percent_indexed":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				info.PercentIndexed = f
			}
		case "state":
			info.State = val
		}
	}
	return info
}

// buildCreateArgs renders FT.CREATE arguments: hashes under one prefix,
// tag fields first, then the HNSW vector field.
func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	args := []string{idx.Name, "ON", "HASH", "PREFIX", "1", idx.Prefix, "SCHEMA"}
	for _, t := range idx.Tags {
		args = append(args, tagFieldArgs(t)...)
	}
	return append(args, vectorFieldArgs(idx.Vector)...), nil
}

func tagFieldArgs(t db.TagField) []string {
	args := []string{t.Name, "TAG"}
	if t.Separator != "" {
		args = append(args, "SEPARATOR", t.Separator)
	}
	if t.CaseSensitive {
		args = append(args, "CASESENSITIVE")
	}
	return args
}

func vectorFieldArgs(v db.VectorField) []string {
	distance := v.Distance
	if distance == "" {
		distance = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dim),
		"DISTANCE_METRIC", string(distance),
	}
	if v.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(v.M))
	}
	if v.EFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(v.EFConstruct))
	}

	args := make([]string, 0, 4+len(attrs))
	args = append(args, v.Name, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	return append(args, attrs...)
}
