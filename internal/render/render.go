// ABOUTME: Default payload renderer for join/leave notices and execution results.
// ABOUTME: Platform bindings may substitute their own richer renderer.

package render

import (
	"fmt"

	"github.com/forgebot/gateway/internal/platform"
)

// Payload accent colors.
const (
	colorInfo    = 0x3498DB
	colorSuccess = 0x2ECC71
	colorFailure = 0xE74C3C
)

// Renderer is the stock platform.Renderer implementation.
type Renderer struct{}

// New creates the default renderer.
func New() Renderer {
	return Renderer{}
}

func (Renderer) JoinNotice(groupName string, groupID uint64) platform.Payload {
	return platform.Payload{
		Title:       "Joined a new group",
		Description: fmt.Sprintf("%s (%d)", groupName, groupID),
		Color:       colorInfo,
	}
}

func (Renderer) LeaveNotice(groupID uint64) platform.Payload {
	return platform.Payload{
		Title:       "Left a group",
		Description: fmt.Sprintf("group %d", groupID),
		Color:       colorInfo,
	}
}

func (Renderer) Welcome() platform.Payload {
	return platform.Payload{
		Title:       "Thanks for adding me!",
		Description: "Attach a source file and confirm with the marker reaction to compile it.",
		Color:       colorSuccess,
	}
}

func (Renderer) Failure(authorID uint64, reason string) platform.Payload {
	return platform.Payload{
		Title:       "Request failed",
		Description: reason,
		Color:       colorFailure,
	}
}

func (Renderer) Result(output string) platform.Payload {
	return platform.Payload{
		Title:       "Compilation result",
		Description: output,
		Color:       colorSuccess,
	}
}

// Ensure Renderer implements platform.Renderer.
var _ platform.Renderer = Renderer{}
