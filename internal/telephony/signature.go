package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"call-assistant/pkg/logger"
)

const signatureHeader = "X-Twilio-Signature"

// RequireTwilioSignature validates X-Twilio-Signature on webhook routes.
//
// publicHost must be the externally visible host Twilio signed against;
// behind a load balancer the request's own Host header is not trustworthy.
func RequireTwilioSignature(authToken, publicHost string) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := "https://" + publicHost + c.Request.URL.RequestURI()
		if !ValidSignature(authToken, url, c.Request, c.GetHeader(signatureHeader)) {
			logger.FromGin(c).Warn("twilio signature validation failed", "path", c.Request.URL.Path)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// ValidSignature implements Twilio's request signing scheme: HMAC-SHA1 over
// the full URL with all POST parameters appended in sorted key order.
func ValidSignature(authToken, url string, r *http.Request, signature string) bool {
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}

	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(url))
	for _, k := range keys {
		mac.Write([]byte(k))
		for _, v := range r.PostForm[k] {
			mac.Write([]byte(v))
			break // Twilio signs only the first value per key
		}
	}
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
