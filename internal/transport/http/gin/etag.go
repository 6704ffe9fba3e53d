package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type cachePolicy struct {
	control string
	weak    bool
}

var (
	// bookings change on every transition, clients must revalidate
	revalidate = cachePolicy{control: "no-cache"}
	// occupancy is a derived count, a few seconds of staleness is fine
	shortLived = cachePolicy{control: "private, max-age=5", weak: true}
)

func etagOf(b []byte, weak bool) string {
	sum := sha256.Sum256(b)
	tag := `"` + hex.EncodeToString(sum[:16]) + `"`
	if weak {
		tag = "W/" + tag
	}
	return tag
}

// etagMatches applies the weak comparison from RFC 9110 13.1.2 to an
// If-None-Match header value.
func etagMatches(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}

// writeCachedJSON writes v with ETag and Cache-Control headers, or a bare
// 304 when the client already holds the current representation.
func writeCachedJSON(c *gin.Context, status int, v any, p cachePolicy) {
	b, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}

	tag := etagOf(b, p.weak)
	c.Header("ETag", tag)
	if p.control != "" {
		c.Header("Cache-Control", p.control)
	}
	if etagMatches(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(status, "application/json; charset=utf-8", b)
}
