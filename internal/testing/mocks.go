package testing

import (
	"context"
	"sync"
)

// PushRecorder is a test double for the push dispatcher. It records every
// send and can be told to fail.
type PushRecorder struct {
	mu    sync.Mutex
	Sends []RecordedPush
	Err   error
}

// RecordedPush is one captured push notification
type RecordedPush struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

func (p *PushRecorder) Send(_ context.Context, token, title, body string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Sends = append(p.Sends, RecordedPush{Token: token, Title: title, Body: body, Data: data})
	return nil
}

// Count returns the number of captured pushes
func (p *PushRecorder) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Sends)
}

// RealtimeRecorder is a test double for the websocket registry
type RealtimeRecorder struct {
	mu       sync.Mutex
	Messages map[int64][]interface{}
}

func (r *RealtimeRecorder) Send(driverID int64, message interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Messages == nil {
		r.Messages = make(map[int64][]interface{})
	}
	r.Messages[driverID] = append(r.Messages[driverID], message)
}

// NotifyRecorder is a test double for the swap notifier
type NotifyRecorder struct {
	mu            sync.Mutex
	Notifications []RecordedNotification
}

// RecordedNotification is one captured driver notification
type RecordedNotification struct {
	DriverID int64
	Title    string
	Body     string
	Data     map[string]string
}

func (n *NotifyRecorder) NotifyDriver(_ context.Context, driverID int64, title, body string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notifications = append(n.Notifications, RecordedNotification{
		DriverID: driverID, Title: title, Body: body, Data: data,
	})
}

// Count returns the number of captured notifications
func (n *NotifyRecorder) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Notifications)
}

// StaticWeather is a weather oracle that always answers with a fixed factor
type StaticWeather struct {
	Factor float64
}

func (w StaticWeather) ImpactFactor(context.Context) float64 {
	return w.Factor
}
