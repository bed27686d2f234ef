package feed

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"gengateway/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 891011000, time.UTC)
	last := domain.Post{ID: "s_02", CreatedAt: at, Score: 1772600767.25}

	key, snapshot, err := decodeCursor(encodeCursor("latest", domain.OrderLatest, last, "s_09"), "latest", domain.OrderLatest)
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if !key.CreatedAt.Equal(at) || key.ID != "s_02" || snapshot != "s_09" {
		t.Fatalf("key = %+v, snapshot = %q", key, snapshot)
	}

	key, _, err = decodeCursor(encodeCursor("top", domain.OrderTop, last, "s_09"), "top", domain.OrderTop)
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if key.Score != last.Score {
		t.Fatalf("Score = %v, want %v", key.Score, last.Score)
	}
}

func TestDecodeCursorRejects(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	cases := map[string]string{
		"not base64":     "%%%",
		"not json":       enc("cursor"),
		"old version":    enc(`{"v":0,"m":"latest","k":"1","id":"s_1"}`),
		"missing id":     enc(`{"v":1,"m":"latest","k":"1","s":"s_9"}`),
		"no snapshot":    enc(`{"v":1,"m":"latest","k":"1","id":"s_1"}`),
		"empty snapshot": enc(`{"v":1,"m":"latest","k":"1","id":"s_1","s":""}`),
		"bad key":        enc(`{"v":1,"m":"latest","k":"yesterday","id":"s_1","s":"s_9"}`),
		"other listing":  enc(`{"v":1,"m":"user:u_1","k":"1","id":"s_1","s":"s_9"}`),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := decodeCursor(token, "latest", domain.OrderLatest)
			var de *domain.Error
			if !errors.As(err, &de) || de.Kind != domain.KindInvalidCursor || de.Field != "cursor" {
				t.Fatalf("err = %v, want invalid cursor", err)
			}
		})
	}
}
