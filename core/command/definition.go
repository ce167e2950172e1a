package command

import (
	"context"
	"errors"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

var (
	ErrNoName    = errors.New("command name is empty")
	ErrNoHandler = errors.New("command has no handler")
)

// HandlerFunc runs a command for the message bound to c.
type HandlerFunc func(ctx context.Context, c *chat.Context) error

// Definition describes a command and how it is authorized.
type Definition struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Category    string

	OwnerOnly bool
	AdminOnly bool
	GroupOnly bool
	// Hidden commands are omitted from help listings.
	Hidden bool

	// AllowUsers and AllowChats restrict the command to the listed
	// identities. Both empty means unrestricted.
	AllowUsers []string
	AllowChats []string

	Cooldown time.Duration
	Handler  HandlerFunc
}

// AllowList is an externally managed set of identities permitted to run a
// command.
type AllowList struct {
	Users []string
	Chats []string
}

// Empty reports whether the list restricts nothing.
func (a AllowList) Empty() bool { return len(a.Users) == 0 && len(a.Chats) == 0 }

// AllowLister looks up the external allow-list for a command.
type AllowLister interface {
	CommandAllowList(ctx context.Context, command string) (AllowList, error)
}

// Outcome reports how Execute finished.
type Outcome int

const (
	NotFound Outcome = iota
	Denied           // silent: unauthorized or owner-only
	Rejected         // user-visible: admin-only or group-only
	CoolingDown
	Failed
	Succeeded
)

func (o Outcome) String() string {
	switch o {
	case NotFound:
		return "not_found"
	case Denied:
		return "denied"
	case Rejected:
		return "rejected"
	case CoolingDown:
		return "cooldown"
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	}
	return "unknown"
}
