package feed

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"gengateway/internal/domain"
)

const cursorVersion = 1

// cursor is the decoded form of a continuation token. Mode binds the token
// to the listing that issued it; Snapshot is the newest post id visible when
// pagination started.
type cursor struct {
	Version  int    `json:"v"`
	Mode     string `json:"m"`
	Key      string `json:"k"`
	ID       string `json:"id"`
	Snapshot string `json:"s"`
}

func encodeCursor(mode string, order domain.FeedOrder, last domain.Post, snapshot string) string {
	c := cursor{Version: cursorVersion, Mode: mode, ID: last.ID, Snapshot: snapshot}
	if order == domain.OrderTop {
		c.Key = strconv.FormatFloat(last.Score, 'g', -1, 64)
	} else {
		c.Key = strconv.FormatInt(last.CreatedAt.UnixMicro(), 10)
	}
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token, mode string, order domain.FeedOrder) (*domain.FeedKey, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, "", invalidCursor("cursor is not decodable")
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, "", invalidCursor("cursor is not decodable")
	}
	if c.Version != cursorVersion {
		return nil, "", invalidCursor("cursor version is not supported")
	}
	if c.Mode != mode {
		return nil, "", invalidCursor("cursor was issued for a different listing")
	}
	if c.ID == "" || c.Snapshot == "" {
		return nil, "", invalidCursor("cursor is incomplete")
	}
	key := &domain.FeedKey{ID: c.ID}
	if order == domain.OrderTop {
		score, err := strconv.ParseFloat(c.Key, 64)
		if err != nil {
			return nil, "", invalidCursor("cursor key is malformed")
		}
		key.Score = score
	} else {
		micros, err := strconv.ParseInt(c.Key, 10, 64)
		if err != nil {
			return nil, "", invalidCursor("cursor key is malformed")
		}
		key.CreatedAt = time.UnixMicro(micros).UTC()
	}
	return key, c.Snapshot, nil
}

func invalidCursor(msg string) error {
	return domain.NewError(domain.KindInvalidCursor, "cursor", msg)
}
