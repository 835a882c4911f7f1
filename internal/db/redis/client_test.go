package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

func newMockStore(t *testing.T) (*Store, *mock.Client) {
	t.Helper()
	c := mock.NewClient(gomock.NewController(t))
	return &Store{client: c}, c
}

func TestPing(t *testing.T) {
	s, c := newMockStore(t)
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG"))),
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(errors.New("connection refused"))),
	)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := s.Ping(context.Background())
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpPing {
		t.Fatalf("expected db.Error for PING, got %v", err)
	}
}

func TestWaitForReady_RetriesUntilPong(t *testing.T) {
	s, c := newMockStore(t)
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(errors.New("LOADING"))),
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG"))),
	)

	if err := s.WaitForReady(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	s, c := newMockStore(t)
	refused := errors.New("connection refused")
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(refused)).AnyTimes()

	err := s.WaitForReady(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !errors.Is(err, refused) {
		t.Errorf("timeout error should carry the last ping failure, got %v", err)
	}
}

func TestNewStore_NoAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func serverErr(msg string) error {
	return mock.Result(mock.RedisError(msg)).Error()
}

func TestServerErrorContains(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fragments []string
		want      bool
	}{
		{"case-insensitive match", serverErr("Index already exists"), []string{"index already exists"}, true},
		{"second fragment", serverErr("Index with name 'docs' not found"), []string{"unknown index name", "not found"}, true},
		{"other server error", serverErr("WRONGTYPE Operation against a key"), []string{"not found"}, false},
		{"transport error", errors.New("index already exists"), []string{"index already exists"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serverErrorContains(tt.err, tt.fragments...); got != tt.want {
				t.Errorf("serverErrorContains = %v, want %v", got, tt.want)
			}
		})
	}
}
