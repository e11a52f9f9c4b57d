package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "presence:"

// Seen is the recorded presence of an account.
type Seen struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// LastSeen records session transitions in Redis so they survive restarts
// and are visible to every engine instance.
type LastSeen struct {
	client  redis.UniversalClient
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewLastSeen constructs LastSeen.
func NewLastSeen(client redis.UniversalClient, timeout time.Duration, logger *zap.Logger) *LastSeen {
	return &LastSeen{client: client, timeout: timeout, logger: logger, now: time.Now}
}

func (l *LastSeen) Online(accountID string) {
	l.record(accountID, true)
}

func (l *LastSeen) Offline(accountID string) {
	l.record(accountID, false)
}

func (l *LastSeen) record(accountID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	flag := "0"
	if online {
		flag = "1"
	}
	err := l.client.HSet(ctx, keyPrefix+accountID,
		"online", flag,
		"last_seen", strconv.FormatInt(l.now().UnixMilli(), 10),
	).Err()
	if err != nil {
		l.logger.Warn("record presence failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

// Status returns what is known about accountID. Unknown accounts are offline with no timestamp.
func (l *LastSeen) Status(ctx context.Context, accountID string) (Seen, error) {
	fields, err := l.client.HGetAll(ctx, keyPrefix+accountID).Result()
	if err != nil {
		return Seen{}, err
	}
	seen := Seen{Online: fields["online"] == "1"}
	if raw, ok := fields["last_seen"]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			at := time.UnixMilli(ms).UTC()
			seen.LastSeen = &at
		}
	}
	return seen, nil
}

// Forget drops the record of a deleted account.
func (l *LastSeen) Forget(ctx context.Context, accountID string) error {
	return l.client.Del(ctx, keyPrefix+accountID).Err()
}
