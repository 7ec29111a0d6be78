package rocketchat

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	ErrNotConnected = errors.New("rocketchat: not connected")
	ErrRateLimited  = errors.New("rocketchat: rate limited")
	ErrNotFound     = errors.New("rocketchat: not found")
)

// MethodError is an error result of a DDP method call.
type MethodError struct {
	Method  string
	Code    string
	Reason  string
	Message string
}

func (e *MethodError) Error() string {
	if e == nil {
		return ""
	}
	text := e.Reason
	if text == "" {
		text = e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("rocketchat %s failed: %s (%s)", e.Method, text, e.Code)
	}
	return fmt.Sprintf("rocketchat %s failed: %s", e.Method, text)
}

// APIError is a non-successful REST response.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("rocketchat %s http %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("rocketchat %s http %d: %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Status == 429
	case ErrNotFound:
		return e.Status == 404
	}
	return false
}

var (
	ddpRateLimitRE  = regexp.MustCompile(`([0-9]+) seconds.*\[too-many-requests\]`)
	restRateLimitRE = regexp.MustCompile(`([0-9]+) seconds .*\[error-too-many-requests\]`)
)

// rateLimitDelay extracts the server-requested wait from a rate limiter
// message.
func rateLimitDelay(re *regexp.Regexp, text string) (time.Duration, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) != 2 {
		return 0, false
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
