package redis

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

func chunkIndex() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:   "docs",
		Prefix: "ragdesk:chunk:docs:",
		Tags: []db.TagField{
			{Name: "source", Separator: "|", CaseSensitive: true},
		},
		Vector: db.VectorField{Name: "vector", Dim: 4, Distance: db.DistanceCosine, M: 16, EFConstruct: 200},
	}
}

func isFTCreate(cmd []string) bool { return cmd[0] == "FT.CREATE" }

func TestCreateIndex(t *testing.T) {
	tests := []struct {
		name    string
		reply   rueidis.RedisResult
		wantErr func(error) bool
	}{
		{"created", mock.Result(mock.RedisString("OK")), func(err error) bool { return err == nil }},
		{"exists", mock.Result(mock.RedisError("Index already exists")), func(err error) bool { return errors.Is(err, db.ErrIndexExists) }},
		{"transport", mock.ErrorResult(context.DeadlineExceeded), func(err error) bool {
			var dbErr *db.Error
			return errors.As(err, &dbErr) && dbErr.Op == db.OpCreateIndex
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newMockStore(t)
			c.EXPECT().Do(gomock.Any(), mock.MatchFn(isFTCreate)).Return(tt.reply)

			if err := s.CreateIndex(context.Background(), chunkIndex()); !tt.wantErr(err) {
				t.Errorf("unexpected result: %v", err)
			}
		})
	}
}

func TestCreateIndex_InvalidNeverReachesServer(t *testing.T) {
	s, _ := newMockStore(t)
	idx := chunkIndex()
	idx.Vector.Dim = 0

	if err := s.CreateIndex(context.Background(), idx); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildCreateArgs_ChunkIndex(t *testing.T) {
	args, err := buildCreateArgs(chunkIndex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"docs", "ON", "HASH", "PREFIX", "1", "ragdesk:chunk:docs:", "SCHEMA",
		"source", "TAG", "SEPARATOR", "|", "CASESENSITIVE",
		"vector", "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32", "DIM", "4", "DISTANCE_METRIC", "COSINE",
		"M", "16", "EF_CONSTRUCTION", "200",
	}
	if !slices.Equal(args, want) {
		t.Errorf("args =\n%q\nwant\n%q", args, want)
	}
}

func TestBuildCreateArgs_ServerDefaults(t *testing.T) {
	idx := chunkIndex()
	idx.Tags = nil
	idx.Vector = db.VectorField{Name: "vector", Dim: 768}

	args, err := buildCreateArgs(idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"docs", "ON", "HASH", "PREFIX", "1", "ragdesk:chunk:docs:", "SCHEMA",
		"vector", "VECTOR", "HNSW", "6", "TYPE", "FLOAT32", "DIM", "768", "DISTANCE_METRIC", "COSINE",
	}
	if !slices.Equal(args, want) {
		t.Errorf("args =\n%q\nwant\n%q", args, want)
	}
}

func TestListIndexes(t *testing.T) {
	s, c := newMockStore(t)
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("FT._LIST")).Return(mock.Result(mock.RedisArray(
			mock.RedisString("ragdesk-docs-v2"),
			mock.RedisString("other"),
		))),
		c.EXPECT().Do(gomock.Any(), mock.Match("FT._LIST")).Return(mock.ErrorResult(context.DeadlineExceeded)),
	)

	names, err := s.ListIndexes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(names, []string{"ragdesk-docs-v2", "other"}) {
		t.Errorf("names = %v", names)
	}

	_, err = s.ListIndexes(context.Background())
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Errorf("expected db.Error, got %v", err)
	}
}

func TestIndexInfo(t *testing.T) {
	tests := []struct {
		name      string
		reply     rueidis.RedisMessage
		wantDocs  int64
		wantReady bool
	}{
		{
			name: "redis finished indexing",
			reply: mock.RedisArray(
				mock.RedisString("index_name"), mock.RedisString("docs"),
				mock.RedisString("index_definition"), mock.RedisArray(mock.RedisString("key_type"), mock.RedisString("HASH")),
				mock.RedisString("num_docs"), mock.RedisString("42"),
				mock.RedisString("indexing"), mock.RedisInt64(0),
				mock.RedisString("percent_indexed"), mock.RedisString("1"),
			),
			wantDocs:  42,
			wantReady: true,
		},
		{
			name: "redis still indexing",
			reply: mock.RedisArray(
				mock.RedisString("num_docs"), mock.RedisInt64(7),
				mock.RedisString("indexing"), mock.RedisInt64(1),
				mock.RedisString("percent_indexed"), mock.RedisString("0.35"),
			),
			wantDocs: 7,
		},
		{
			name: "valkey backfill",
			reply: mock.RedisArray(
				mock.RedisString("index_name"), mock.RedisString("docs"),
				mock.RedisString("num_docs"), mock.RedisInt64(3),
				mock.RedisString("state"), mock.RedisString("backfill_in_progress"),
			),
			wantDocs: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newMockStore(t)
			c.EXPECT().Do(gomock.Any(), mock.Match("FT.INFO", "docs")).Return(mock.Result(tt.reply))

			info, err := s.IndexInfo(context.Background(), "docs")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.Name != "docs" || info.NumDocs != tt.wantDocs {
				t.Errorf("info = %+v, want %d docs of docs", info, tt.wantDocs)
			}
			if info.Ready() != tt.wantReady {
				t.Errorf("Ready() = %v, want %v", info.Ready(), tt.wantReady)
			}
		})
	}
}

func TestIndexInfo_NotFound(t *testing.T) {
	for _, msg := range []string{"Unknown index name", "Index with name 'docs' not found in database 0"} {
		s, c := newMockStore(t)
		c.EXPECT().Do(gomock.Any(), mock.Match("FT.INFO", "docs")).Return(mock.Result(mock.RedisError(msg)))

		if _, err := s.IndexInfo(context.Background(), "docs"); !errors.Is(err, db.ErrIndexNotFound) {
			t.Errorf("%q: expected ErrIndexNotFound, got %v", msg, err)
		}
	}
}
