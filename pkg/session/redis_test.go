package session

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

func encodedSession(t *testing.T, s *Session) string {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestRedisRegistry_Ping(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	r := newRedisRegistry(c, "", 0)
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisRegistry_CreateWithTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return len(cmd) == 5 &&
				cmd[0] == "SET" &&
				strings.HasPrefix(cmd[1], "ff:") &&
				strings.Contains(cmd[2], `"photo_name":"beach.jpg"`) &&
				cmd[3] == "EX" && cmd[4] == "1800"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	r := newRedisRegistry(c, "ff:", 30*time.Minute)
	token, err := r.Create(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
}

func TestRedisRegistry_CreateWithoutTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return len(cmd) == 3 && cmd[0] == "SET" && strings.HasPrefix(cmd[1], defaultKeyPrefix)
		})).
		Return(mock.Result(mock.RedisString("OK")))

	r := newRedisRegistry(c, "", 0)
	if _, err := r.Create(context.Background(), testSession()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisRegistry_CreateError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	r := newRedisRegistry(c, "", 0)
	if _, err := r.Create(context.Background(), testSession()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisRegistry_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := testSession()
	s.Token = "tok"

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "ff:tok")).
		Return(mock.Result(mock.RedisString(encodedSession(t, s))))

	r := newRedisRegistry(c, "ff:", 0)
	got, err := r.Get(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Token != "tok" || len(got.Faces) != 2 || got.Faces[1].TempID != "t2" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestRedisRegistry_GetMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "ff:gone")).
		Return(mock.Result(mock.RedisNil()))

	r := newRedisRegistry(c, "ff:", 0)
	if _, err := r.Get(context.Background(), "gone"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRedisRegistry_Retire(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := testSession()
	s.Token = "tok"

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("GETDEL", "ff:tok")).
			Return(mock.Result(mock.RedisString(encodedSession(t, s)))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("GETDEL", "ff:tok")).
			Return(mock.Result(mock.RedisNil())),
	)

	r := newRedisRegistry(c, "ff:", 0)
	got, err := r.Retire(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PhotoRef != "photo-1.jpg" {
		t.Errorf("unexpected photo ref %q", got.PhotoRef)
	}

	if _, err := r.Retire(context.Background(), "tok"); err != ErrSessionNotFound {
		t.Fatalf("second retire: expected ErrSessionNotFound, got %v", err)
	}
}

func TestRedisRegistry_RetireCorruptValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GETDEL", "ff:tok")).
		Return(mock.Result(mock.RedisString("{not json")))

	r := newRedisRegistry(c, "ff:", 0)
	if _, err := r.Retire(context.Background(), "tok"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRedisRegistry_RestoreKeepsRemainingTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := testSession()
	s.Token = "tok"
	s.ExpiresAt = now.Add(90 * time.Second)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return len(cmd) == 5 && cmd[0] == "SET" && cmd[1] == "ff:tok" && cmd[3] == "EX" && cmd[4] == "90"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	r := newRedisRegistry(c, "ff:", time.Hour)
	r.now = func() time.Time { return now }
	if err := r.Restore(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisRegistry_RestoreExpired(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := testSession()
	s.Token = "tok"
	s.ExpiresAt = now.Add(-time.Second)

	r := newRedisRegistry(c, "ff:", time.Hour)
	r.now = func() time.Time { return now }
	if err := r.Restore(context.Background(), s); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestNewRedisRegistry_RequiresAddrs(t *testing.T) {
	if _, err := NewRedisRegistry(RedisConfig{}); err == nil {
		t.Fatal("expected error without addrs")
	}
}
