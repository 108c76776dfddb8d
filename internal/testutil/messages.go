package testutil

import (
	"github.com/roach88/agreements/internal/ir"
)

// EngineUser is the engine account used throughout tests.
var EngineUser = ir.User{ID: 1, Handle: "AgreementEngine", Name: "Agreement Engine", Followers: 1000}

// User builds a test identity. The name mirrors the handle.
func User(id int64, handle string, followers int64) ir.User {
	return ir.User{ID: id, Handle: handle, Name: handle, Followers: followers}
}

// Mention builds an inbound message addressed to the engine.
//
// The engine is always the first mention, followed by others in order,
// matching how mentions arrive from the gateway.
func Mention(id int64, author ir.User, text string, others ...ir.User) ir.Message {
	mentions := append([]ir.User{EngineUser}, others...)
	return ir.Message{
		ID:        id,
		Author:    author,
		Text:      text,
		CreatedAt: Epoch,
		Mentions:  mentions,
	}
}

// Reply builds a mention that replies to parent.
func Reply(id, parent int64, author ir.User, text string, others ...ir.User) ir.Message {
	m := Mention(id, author, text, others...)
	m.ReplyTo = parent
	return m
}
