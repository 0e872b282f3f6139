package session

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testToken(exp time.Time) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(`{"userId":"u1","exp":`+strconv.FormatInt(exp.Unix(), 10)+`}`)) + ".c2ln"
}

func newRedisTest(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

type failingPersister struct {
	mu    sync.Mutex
	saves int
}

func (f *failingPersister) Load(context.Context) (Pair, error) { return Pair{}, errors.New("load boom") }
func (f *failingPersister) Save(context.Context, Pair) error {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()
	return errors.New("save boom")
}
func (f *failingPersister) Clear(context.Context) error { return errors.New("clear boom") }
