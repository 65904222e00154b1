package analysis

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

func reposKey(userID string) string { return "repos:" + userID }

func analysisKey(userID, locator string) string { return "analysis:" + userID + ":" + locator }

func leaseKey(userID, locator string) string { return "lease:analysis:" + userID + ":" + locator }

// cacheGet decodes the JSON value at key into out. Misses, transport errors and
// corrupt values all report false; the latter two are logged.
func (s *Service) cacheGet(ctx context.Context, key string, out interface{}) bool {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.log.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		_ = s.cache.Del(ctx, key)
		return false
	}
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, ttl time.Duration, value interface{}) {
	b, err := json.Marshal(value)
	if err != nil {
		s.log.Error("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.SetWithExpiry(ctx, key, ttl, string(b)); err != nil {
		s.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
