package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// cacheEntry is the compact form stored in Redis. The normalized response is
// stored directly so replays need no provider-specific re-parsing.
type cacheEntry struct {
	Provider       string                    `json:"provider"`
	Model          string                    `json:"model"`
	Content        string                    `json:"content,omitempty"`
	Embeddings     [][]float64               `json:"embeddings,omitempty"`
	FinishReason   domain.FinishReason       `json:"finish_reason,omitempty"`
	Usage          transport.NormalizedUsage `json:"usage"`
	StoredAtUnixMs int64                     `json:"stored_at_ms"`
}

// atomicCacheHitOrLease atomically checks for a cached value, validates it
// for corruption and staleness, and acquires a lease on miss.
// Status codes: 1 hit, 2 lease acquired, 0 lease held elsewhere.
//
// KEYS[1] = cacheKey
// KEYS[2] = leaseKey
// ARGV[1] = lease TTL in seconds
// ARGV[2] = maxAgeMs (-1 disables staleness checking)
const atomicCacheHitOrLease = `
	local cached = redis.call('GET', KEYS[1])
	if cached then
		if string.len(cached) < 2 or string.sub(cached, 1, 1) ~= '{' then
			redis.call('DEL', KEYS[1])
			local leased = redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1])
			if leased then return {2, nil} else return {0, nil} end
		end

		local maxAgeMs = tonumber(ARGV[2]) or -1
		if maxAgeMs >= 0 then
			local ok, obj = pcall(cjson.decode, cached)
			if not ok or type(obj) ~= 'table' then
				redis.call('DEL', KEYS[1])
				local leased = redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1])
				if leased then return {2, nil} else return {0, nil} end
			end

			local storedAt = tonumber(obj["stored_at_ms"])
			if not storedAt then
				redis.call('DEL', KEYS[1])
				local leased = redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1])
				if leased then return {2, nil} else return {0, nil} end
			end

			local now = redis.call('TIME')
			local nowMs = now[1] * 1000 + math.floor(now[2] / 1000)
			local age = nowMs - storedAt
			if age < 0 or age > maxAgeMs then
				redis.call('DEL', KEYS[1])
				local leased = redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1])
				if leased then return {2, nil} else return {0, nil} end
			end
		end

		return {1, cached}
	end

	local leased = redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1])
	if leased then return {2, nil} end
	return {0, nil}
`

// cacheStatus represents the outcome of an atomic cache-and-lease operation.
type cacheStatus int

const (
	leaseFailed   cacheStatus = 0
	cacheHit      cacheStatus = 1
	leaseAcquired cacheStatus = 2
)

// atomicCheckAndLease performs the cache check and lease acquisition in a
// single Lua script so concurrent instances cannot both miss and duplicate
// the upstream call.
func (c *cacheMiddleware) atomicCheckAndLease(
	ctx context.Context, cacheKey, leaseKey string, leaseTTL time.Duration,
) (cacheStatus, *transport.Response, bool, error) {
	if c.client == nil {
		return leaseAcquired, nil, true, nil
	}

	maxAgeMs := int64(-1)
	if c.maxAge > 0 {
		maxAgeMs = c.maxAge.Milliseconds()
	}

	result, err := c.client.Eval(ctx, atomicCacheHitOrLease,
		[]string{cacheKey, leaseKey},
		int(leaseTTL.Seconds()), maxAgeMs).Result()
	if err != nil {
		return leaseFailed, nil, false, fmt.Errorf("atomic check-and-lease failed: %w", err)
	}

	resultSlice, ok := result.([]any)
	if !ok || len(resultSlice) != 2 {
		return leaseFailed, nil, false, fmt.Errorf("unexpected script result format")
	}

	statusCode, ok := resultSlice[0].(int64)
	if !ok {
		return leaseFailed, nil, false, fmt.Errorf("invalid status code in script result")
	}

	status := cacheStatus(statusCode)
	switch status {
	case cacheHit:
		var raw []byte
		switch v := resultSlice[1].(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return leaseFailed, nil, false, fmt.Errorf("invalid cached data type %T", v)
		}

		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.logger.Error("unexpected cache unmarshal error after script validation",
				"error", err, "key", cacheKey)
			return leaseFailed, nil, false, fmt.Errorf("cache entry unmarshal failed: %w", err)
		}

		return cacheHit, entryToResponse(&entry), false, nil

	case leaseAcquired:
		return leaseAcquired, nil, true, nil

	default:
		return leaseFailed, nil, false, nil
	}
}

// get retrieves a cached response, used as fallback in lease retry.
// Returns redis.Nil if the entry is missing or corrupted.
func (c *cacheMiddleware) get(ctx context.Context, key string) (*transport.Response, error) {
	if c.client == nil {
		return nil, redis.Nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("cache unmarshal error", "error", err, "key", key)
		_ = c.client.Del(ctx, key)
		return nil, redis.Nil
	}

	return entryToResponse(&entry), nil
}

// set stores a successful response with the configured TTL.
func (c *cacheMiddleware) set(
	ctx context.Context,
	key string,
	resp *transport.Response,
	req *transport.Request,
) error {
	if c.client == nil {
		return nil
	}

	entry := responseToEntry(resp, req)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func responseToEntry(resp *transport.Response, req *transport.Request) *cacheEntry {
	return &cacheEntry{
		Provider:       req.Provider,
		Model:          resp.Model,
		Content:        resp.Content,
		Embeddings:     resp.Embeddings,
		FinishReason:   resp.FinishReason,
		Usage:          resp.Usage,
		StoredAtUnixMs: time.Now().UnixMilli(),
	}
}

func entryToResponse(entry *cacheEntry) *transport.Response {
	return &transport.Response{
		Content:      entry.Content,
		Embeddings:   entry.Embeddings,
		Model:        entry.Model,
		FinishReason: entry.FinishReason,
		Usage:        entry.Usage,
		CachedAt:     entry.StoredAtUnixMs,
	}
}
