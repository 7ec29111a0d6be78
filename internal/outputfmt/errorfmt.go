package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

var urlInTextRE = regexp.MustCompile(`(?:https?|wss?)://[^\s"'<>]+`)

var sensitiveQueryParts = []string{"token", "secret", "password", "apikey", "authorization", "userid", "cookie"}

// FormatErrorForDisplay turns err into text that can be posted into a chat
// room: server hosts are removed from URLs and credentials in query strings
// are redacted.
func FormatErrorForDisplay(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeErrorText(err.Error())
}

func SanitizeErrorText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return urlInTextRE.ReplaceAllStringFunc(raw, stripHost)
}

func stripHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	out := u.EscapedPath()
	if out == "" {
		out = "/"
	}
	if len(u.Query()) > 0 {
		q := u.Query()
		for k := range q {
			if isSensitiveKey(k) {
				q.Set(k, "[redacted]")
			}
		}
		out += "?" + q.Encode()
	}
	if frag := u.EscapedFragment(); frag != "" {
		out += "#" + frag
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer("-", "", "_", "").Replace(k)
	if k == "" {
		return false
	}
	if k == "key" {
		return true
	}
	for _, part := range sensitiveQueryParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}
