package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateUsername indicates a user with the same username already
	// exists. Usernames are unique across every backend.
	ErrDuplicateUsername = errors.New("storage: duplicate username")

	// ErrDuplicateID indicates a randomly generated identifier collided with
	// an existing record. Callers are expected to regenerate and retry.
	ErrDuplicateID = errors.New("storage: duplicate id")
)

// User is a registered account together with its password verification
// material. Hash is the hex text of the salted keyed digest; the raw
// password is never stored.
type User struct {
	UUID     uint64
	Username string
	Login    string
	Hash     []byte
	Salt     []byte
	Key      []byte
}

// Flow is a named channel messages are posted into.
type Flow struct {
	FlowID      uint64
	TimeCreated int64
	FlowType    string
	Title       string
	Info        string
}

// Message is a single post inside a flow.
type Message struct {
	Text      string
	UserUUID  uint64
	FlowID    uint64
	Timestamp int64
}

// Repository is the narrow persistence port the dispatcher writes through.
// Records are created once and never updated or deleted. Implementations
// must be safe for concurrent use and must enforce uniqueness on usernames
// and on user/flow identifiers.
type Repository interface {
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByUUID(ctx context.Context, uuid uint64) (User, error)
	CreateUser(ctx context.Context, user User) error
	CreateMessage(ctx context.Context, message Message) error
	ListMessages(ctx context.Context) ([]Message, error)
	CreateFlow(ctx context.Context, flow Flow) error
	ListFlows(ctx context.Context) ([]Flow, error)
}
