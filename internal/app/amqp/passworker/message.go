package passworker

import "time"

const EventPassRequested = "images/pass.requested"

type PassRequestedEventData struct {
	Pass string `json:"pass" validate:"required,oneof=batch retry"`
}

type PassRequestedEnvelope struct {
	EventName string                 `json:"event_name"`
	EventID   string                 `json:"event_id"`
	TS        time.Time              `json:"ts"`
	Data      PassRequestedEventData `json:"data"`
}
