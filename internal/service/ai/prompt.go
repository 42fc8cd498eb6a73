package ai

import (
	"fmt"
	"strings"
	"time"
)

// Wait-time buckets for the introduction acknowledgment.
const (
	shortWait  = 10 * time.Second
	mediumWait = 30 * time.Second
	longWait   = 60 * time.Second
)

// BuildIntroduction composes the synthetic prompt that makes the AI
// speak first on an accepted call. It embeds caller identity, an
// acknowledgment matched to how long the caller waited, and pacing
// instructions for the audio channel.
func BuildIntroduction(name, phoneNumber string, waited time.Duration) string {
	var b strings.Builder

	b.WriteString("A caller has just been connected to you. ")
	switch {
	case name != "" && phoneNumber != "":
		fmt.Fprintf(&b, "Their name is %s and they are calling from %s. ", name, phoneNumber)
	case name != "":
		fmt.Fprintf(&b, "Their name is %s. ", name)
	case phoneNumber != "":
		fmt.Fprintf(&b, "They are calling from %s. ", phoneNumber)
	default:
		b.WriteString("They did not share a name or number. ")
	}

	b.WriteString("Greet them now and open the conversation. ")
	b.WriteString(waitAcknowledgment(waited))
	b.WriteString(" Keep your sentences short and pause after each one so the caller can reply. ")
	b.WriteString("Audio from the caller may arrive with a small delay; wait for them to finish before responding, and never talk over them.")

	return b.String()
}

// waitAcknowledgment picks the acknowledgment phrase for the elapsed
// queue time. Four tiers, longest wait gets the warmest apology.
func waitAcknowledgment(waited time.Duration) string {
	switch {
	case waited < shortWait:
		return "Thank them for calling in."
	case waited < mediumWait:
		return "Thank them for waiting a moment while they were connected."
	case waited < longWait:
		return "Acknowledge that they had to wait a little while, and thank them for their patience."
	default:
		return "Apologize warmly for the long hold and thank them sincerely for staying on the line."
	}
}
