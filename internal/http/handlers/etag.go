package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondJSONWithETag answers 304 when the client already holds this exact
// representation. Bodies differ per caller, so caches must key on Authorization.
func RespondJSONWithETag(ctx *gin.Context, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		RespondInternal(ctx, "Could not encode response")
		return
	}

	etag := weakETag(body)

	ctx.Header("ETag", etag)
	ctx.Header("Vary", "Authorization")

	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", body)
}

// weak: gzip may re-encode the bytes on the way out
func weakETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `W/"` + base64.RawURLEncoding.EncodeToString(sum[:16]) + `"`
}

func etagMatches(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}

	want := opaqueTag(etag)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if opaqueTag(candidate) == want {
			return true
		}
	}
	return false
}

// opaqueTag strips the weakness marker; If-None-Match uses weak comparison.
func opaqueTag(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "W/")
}
