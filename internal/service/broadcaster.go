package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToInterview(interviewID string, msgType string, payload interface{})
}
