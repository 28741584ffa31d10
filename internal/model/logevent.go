package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedEvent is returned for payloads that cannot become a RawLog.
var ErrMalformedEvent = errors.New("malformed log event")

// TimestampLayout is the wire format of LogEvent.Timestamp. It carries
// microseconds, the resolution of a TIMESTAMPTZ column, so a stored row keeps
// the exact instant that was published.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

var (
	Methods = []string{"GET", "POST", "PUT", "DELETE"}
	URLs    = []string{"/home", "/products/123", "/cart", "/checkout", "/user/profile", "/api/data"}
)

// LogEvent is one simulated HTTP access-log record as it travels over the broker.
// The JSON field names are the wire format shared by generator and consumer.
type LogEvent struct {
	IP         string `json:"ip" validate:"omitempty,ipv4"`
	Timestamp  string `json:"timestamp" validate:"required"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode string `json:"status_code" validate:"required,max=3"`
	UserAgent  string `json:"user_agent"`
}

var validate = validator.New()

// Validate checks the fields the store depends on. Method, URL and user agent
// are not persisted and are accepted as-is.
func (e LogEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if _, err := e.Time(); err != nil {
		return fmt.Errorf("%w: timestamp: %v", ErrMalformedEvent, err)
	}
	return nil
}

// Time parses Timestamp as an RFC 3339 instant.
func (e LogEvent) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// DecodeLogEvent parses and validates a UTF-8 JSON payload.
func DecodeLogEvent(payload []byte) (LogEvent, error) {
	var e LogEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return LogEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := e.Validate(); err != nil {
		return LogEvent{}, err
	}
	return e, nil
}

// ToRawLog projects the persisted subset of the event. Method, URL and user
// agent are dropped; an empty IP is stored as NULL.
func (e LogEvent) ToRawLog() (RawLog, error) {
	ts, err := e.Time()
	if err != nil {
		return RawLog{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedEvent, err)
	}
	row := RawLog{
		Timestamp:  ts,
		StatusCode: e.StatusCode,
	}
	if e.IP != "" {
		ip := e.IP
		row.IPAddress = &ip
	}
	return row, nil
}
