package call

import (
	"encoding/json"
	"time"
)

// Control command types accepted on the caller channel. The commands are
// peer-agnostic; a session becomes an operator by actually sending one.
const (
	TypeOperatorAccept    = "operator_accept"
	TypeOperatorReject    = "operator_reject"
	TypeGetWaitingCallers = "get_waiting_callers"
	TypeGetActiveCallers  = "get_active_callers"
	TypeEndCall           = "end_call"
)

// Outbound message types.
const (
	TypeWaiting               = "waiting"
	TypeAccepted              = "accepted"
	TypeRejected              = "rejected"
	TypeError                 = "error"
	TypeStatus                = "status"
	TypeWaitingCallers        = "waiting_callers"
	TypeActiveCallers         = "active_callers"
	TypeCallEnded             = "call_ended"
	TypeCallEndedConfirmation = "call_ended_confirmation"
)

// ControlMessage is the structured inbound frame shape. Frames that do
// not parse into a known Type are treated as opaque audio payloads.
type ControlMessage struct {
	Type           string `json:"type"`
	TargetCallerID string `json:"targetCallerId,omitempty"`
	CallerID       string `json:"callerId,omitempty"`
}

// Target resolves the session the command operates on; accept/reject
// address it as targetCallerId, end_call as callerId.
func (m ControlMessage) Target() string {
	if m.TargetCallerID != "" {
		return m.TargetCallerID
	}
	return m.CallerID
}

// ParseControl classifies one inbound frame. ok is false when the frame
// is not a recognized control command and must be handled as audio.
func ParseControl(frame []byte) (ControlMessage, bool) {
	var msg ControlMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return ControlMessage{}, false
	}
	switch msg.Type {
	case TypeOperatorAccept, TypeOperatorReject, TypeGetWaitingCallers, TypeGetActiveCallers, TypeEndCall:
		return msg, true
	}
	return ControlMessage{}, false
}

// Notice is the generic outbound envelope for lifecycle notifications.
type Notice struct {
	Type     string `json:"type"`
	CallerID string `json:"callerId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Confirmation acknowledges an operator end_call command.
type Confirmation struct {
	Type     string `json:"type"`
	CallerID string `json:"callerId"`
}

// WaitingCaller is one entry of a waiting-callers snapshot.
type WaitingCaller struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Name        string    `json:"name,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// ActiveCaller is one entry of an active-callers snapshot.
type ActiveCaller struct {
	ID                string    `json:"id"`
	PhoneNumber       string    `json:"phoneNumber,omitempty"`
	Name              string    `json:"name,omitempty"`
	ConnectedAt       time.Time `json:"connectedAt"`
	AcceptedAt        time.Time `json:"acceptedAt"`
	ConversationTurns int       `json:"conversationTurns"`
}

// WaitingList is the reply to get_waiting_callers.
type WaitingList struct {
	Type    string          `json:"type"`
	Callers []WaitingCaller `json:"callers"`
}

// ActiveList is the reply to get_active_callers.
type ActiveList struct {
	Type    string         `json:"type"`
	Callers []ActiveCaller `json:"callers"`
}
