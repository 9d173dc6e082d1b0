package models

import (
	"strconv"
	"strings"
)

// Direction tells whether a message was authored by the session owner or by
// the other party of the conversation.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Message is a single chat entry parsed from a marketplace thread page.
// Its identity for deduplication is Text, not ID.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	Time      string    `json:"time" yaml:"time"`
	Date      string    `json:"date" yaml:"date"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// NumericID returns the message id as an integer. Ids that are not numeric
// sort after every numeric id.
func (m Message) NumericID() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(m.ID), 10, 64)
	if err != nil {
		return int64(^uint64(0) >> 1)
	}
	return n
}

// Thread is the ordered sequence of messages of one conversation, ascending
// by numeric message id. It is never mutated after parsing.
type Thread struct {
	Messages []Message `json:"messages" yaml:"messages"`
}

// NewThread wraps msgs as a Thread.
func NewThread(msgs []Message) Thread {
	return Thread{Messages: msgs}
}

// Len returns the number of messages.
func (t Thread) Len() int { return len(t.Messages) }

// Opening returns the first message in chronological order. It is the
// fingerprint used to find the deal a thread already belongs to.
func (t Thread) Opening() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[0], true
}
