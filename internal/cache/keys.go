package cache

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	PageKeyPrefix        = "page:%s"
	RevokedSessionPrefix = "session:revoked:%s"
)

// PageKey builds the cache key of a rendered page.
func PageKey(normalized string) string {
	return fmt.Sprintf(PageKeyPrefix, normalized)
}

// RevokedSessionKey builds the blacklist key of a logged-out session.
func RevokedSessionKey(jti string) string {
	return fmt.Sprintf(RevokedSessionPrefix, jti)
}

// NormalizePageKey canonicalizes a path and raw query so equivalent URLs share
// one cache entry: a trailing slash is enforced and query keys are sorted.
func NormalizePageKey(path, rawQuery string) string {
	if path == "" {
		path = "/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil || len(values) == 0 {
		return path
	}
	for k, v := range values {
		if len(v) == 0 || (len(v) == 1 && v[0] == "") {
			delete(values, k)
		}
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}
