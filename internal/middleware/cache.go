package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-gate/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// ResponseCache stores successful GET responses in Redis for a short TTL
// and advertises that staleness to clients through Cache-Control.  It
// is used for the lobby status poll, which guard terminals hit every few
// seconds.  Mutating handlers call Purge so a fresh count is visible on
// the next poll.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

// NewResponseCache returns a cache bound to rdb.  A nil rdb or a disabled
// config turns storage off; the Cache-Control header is still set.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	if !cfg.Enabled {
		rdb = nil
	}
	return &ResponseCache{cfg: cfg, rdb: rdb}
}

// CacheControl returns the header value describing the allowed staleness.
func (rc *ResponseCache) CacheControl() string {
	v := "public, max-age=" + strconv.Itoa(int(rc.cfg.TTL.Seconds()))
	if swr := int(rc.cfg.StaleWhileRevalidate.Seconds()); swr > 0 {
		v += ", stale-while-revalidate=" + strconv.Itoa(swr)
	}
	return v
}

// routeKeyPrefix is the key namespace of one route; all query variants
// of the route live below it so Purge can drop them together.
func (rc *ResponseCache) routeKeyPrefix(route string) string {
	return rc.cfg.Prefix + ":route:" + route + ":"
}

// cacheKeyFrom builds a stable cache key from the route and raw query.
func (rc *ResponseCache) cacheKeyFrom(c echo.Context) string {
	sum := sha1.Sum([]byte(c.Request().URL.RawQuery))
	return fmt.Sprintf("%s%x", rc.routeKeyPrefix(c.Path()), sum[:])
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// Middleware serves cached responses (X-Cache: HIT) and stores fresh 200
// responses (X-Cache: MISS).  Headers and body are stored verbatim so
// clients see identical formatting.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	maxBody := int64(rc.cfg.MaxBodyBytes)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderCacheControl, rc.CacheControl())
			if rc.rdb == nil || !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			key := rc.cacheKeyFrom(c)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						// Echo sets Content-Length itself
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						c.Response().Header()[k] = vals
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
				_ = rc.rdb.Set(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err()
			}
			return nil
		}
	}
}

// Purge deletes every cached variant of route.  It is a no-op without
// Redis.
func (rc *ResponseCache) Purge(ctx context.Context, route string) error {
	if rc.rdb == nil {
		return nil
	}
	iter := rc.rdb.Scan(ctx, 0, rc.routeKeyPrefix(route)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rc.rdb.Del(ctx, keys...).Err()
}
