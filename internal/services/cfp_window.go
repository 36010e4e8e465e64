package services

import (
	"time"

	"github.com/confhall/cfp-engine/internal/models"
)

// ComputeCFPState derives the call for paper state of an event at instant now.
// Conferences and meetups follow the same rules: a start without an end opens
// the CFP indefinitely.
func ComputeCFPState(_ models.EventType, start, end *time.Time, now time.Time) models.CFPState {
	if start == nil || now.Before(*start) {
		return models.CFPNotOpened
	}
	if end != nil && now.After(*end) {
		return models.CFPFinished
	}
	return models.CFPOpened
}

func eventCFPState(e *models.Event, now time.Time) models.CFPState {
	return ComputeCFPState(e.Type, e.CFPStart, e.CFPEnd, now)
}
