package model

import "time"

// RawLog is a persisted row of the raw_logs table.
type RawLog struct {
	ID         int64     `db:"id" json:"id"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	StatusCode string    `db:"status_code" json:"status_code"`
	IPAddress  *string   `db:"ip_address" json:"ip_address"`
}
