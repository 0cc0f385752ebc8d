package chat

import "errors"

// Mutating operations enforce policy on the server side and report typed
// errors instead of silently dropping the call.
var (
	ErrNotFound     = errors.New("conversation not found")
	ErrNotMember    = errors.New("user is not a member of the conversation")
	ErrNotAdmin     = errors.New("user is not the group admin")
	ErrEmptyMessage = errors.New("message text is empty")
	ErrEmptyName    = errors.New("group name is empty")
	ErrNoMembers    = errors.New("group needs at least one member besides the creator")
	ErrSelfTarget   = errors.New("cannot start a conversation with yourself")
)
