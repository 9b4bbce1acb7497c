package app

import "github.com/LittleAndi/AndiBanterBot/internal/domain"

// Recorder receives dispatch and delivery outcomes for metrics.
type Recorder interface {
	EventReceived(kind domain.EventKind)
	EventFailed(kind domain.EventKind)
	EventDropped(kind domain.EventKind)
	Decision(kind domain.DecisionKind)
	Delivered(mode string, err error)
}

type NopRecorder struct{}

func (NopRecorder) EventReceived(domain.EventKind) {}
func (NopRecorder) EventFailed(domain.EventKind)   {}
func (NopRecorder) EventDropped(domain.EventKind)  {}
func (NopRecorder) Decision(domain.DecisionKind)   {}
func (NopRecorder) Delivered(string, error)        {}
