package models

import "errors"

// ScheduleLayout is the medicine reminder timestamp layout
const ScheduleLayout = "2006-01-02 15:04"

// ErrInvalidSchedule is returned for malformed reminder timestamps
var ErrInvalidSchedule = errors.New("invalid schedule")

// ScheduleEntry is one medicine reminder
type ScheduleEntry struct {
	DateTime string `json:"datetime"`
	Medicine string `json:"medicine"`
}
