package redis

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

func isFTSearch(cmd []string) bool { return cmd[0] == "FT.SEARCH" }

// limitOf returns the LIMIT offset and count of an FT.SEARCH command.
func limitOf(cmd []string) (string, string) {
	i := slices.Index(cmd, "LIMIT")
	if i < 0 || i+2 >= len(cmd) {
		return "", ""
	}
	return cmd[i+1], cmd[i+2]
}

func hit(key, distance, text string) []rueidis.RedisMessage {
	return []rueidis.RedisMessage{
		mock.RedisString(key),
		mock.RedisArray(
			mock.RedisString("__vector_score"), mock.RedisString(distance),
			mock.RedisString("text"), mock.RedisString(text),
		),
	}
}

func TestSearchKNN_NearestFirst(t *testing.T) {
	s, c := newMockStore(t)
	reply := []rueidis.RedisMessage{mock.RedisInt64(2)}
	reply = append(reply, hit("chunk:far", "0.6", "violins")...)
	reply = append(reply, hit("chunk:near", "0.1", "guitars")...)

	c.EXPECT().Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
		offset, count := limitOf(cmd)
		return isFTSearch(cmd) && cmd[1] == "idx" && cmd[2] == "*=>[KNN 3 @vector $BLOB]" &&
			offset == "0" && count == "3"
	})).Return(mock.Result(mock.RedisArray(reply...)))

	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1, 0.2}, K: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 2 || len(res.Entries) != 2 {
		t.Fatalf("got total %d with %d entries, want 2/2", res.Total, len(res.Entries))
	}

	want := []struct {
		key   string
		score float64
		text  string
	}{
		{"chunk:near", 0.9, "guitars"},
		{"chunk:far", 0.4, "violins"},
	}
	for i, w := range want {
		e := res.Entries[i]
		if e.Key != w.key || math.Abs(e.Score-w.score) > 1e-9 || e.Fields["text"] != w.text {
			t.Errorf("entry %d = %+v, want %s %.1f %s", i, e, w.key, w.score, w.text)
		}
		if _, ok := e.Fields["__vector_score"]; ok {
			t.Errorf("entry %d still carries __vector_score", i)
		}
	}
}

func TestSearchKNN_FilterAndReturnFields(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
		return isFTSearch(cmd) &&
			cmd[2] == `(@source:{docs\/a\.pdf})=>[KNN 5 @emb $BLOB]` &&
			slices.Equal(cmd[3:7], []string{"RETURN", "2", "text", "__vector_score"})
	})).Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "idx",
		VectorField:  "emb",
		TagFilters:   map[string]string{"source": "docs/a.pdf"},
		Vector:       []float32{0.1},
		K:            5,
		ReturnFields: []string{"text"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(res.Entries))
	}
}

func TestSearchKNN_ServerError(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.MatchFn(isFTSearch)).Return(mock.ErrorResult(context.DeadlineExceeded))

	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}, K: 10})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpSearch {
		t.Errorf("expected search db.Error, got %v", err)
	}
}

func TestSearchKNN_RejectsBadQuery(t *testing.T) {
	tests := map[string]db.KNNQuery{
		"no index":  {Vector: []float32{0.1}, K: 10},
		"no vector": {IndexName: "idx", K: 10},
		"zero k":    {IndexName: "idx", Vector: []float32{0.1}},
	}
	s, _ := newMockStore(t)
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.SearchKNN(context.Background(), &q); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		tags map[string]string
		want string
	}{
		{nil, ""},
		{map[string]string{"source": "a b", "filename": "x-1"}, `@filename:{x\-1} @source:{a\ b}`},
		{map[string]string{"source": "dir/file.pdf"}, `@source:{dir\/file\.pdf}`},
	}
	for _, tt := range tests {
		if got := buildFilter(tt.tags); got != tt.want {
			t.Errorf("buildFilter(%v) = %q, want %q", tt.tags, got, tt.want)
		}
	}
}
