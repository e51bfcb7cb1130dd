package domain

import "time"

// Timer is an in-flight countdown scheduled by the assistant.
type Timer struct {
	ID       string        `json:"id"`
	Clock    string        `json:"time"`
	Seconds  int           `json:"seconds"`
	FiresAt  time.Time     `json:"fires_at"`
	Duration time.Duration `json:"-"`
}
