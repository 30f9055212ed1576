package access

import "mn-go/internal/fault"

// Level is a permission level. Levels are totally ordered; holding a level
// on an object implies holding every lower level on the same object.
type Level int

const (
	Read             Level = 0
	Write            Level = 1
	ChangePermission Level = 2
)

func (l Level) String() string {
	switch l {
	case Read:
		return "read"
	case Write:
		return "write"
	case ChangePermission:
		return "changePermission"
	default:
		return "unknown"
	}
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= Read && l <= ChangePermission
}

// ParseLevel maps an action name to its level.
func ParseLevel(action string) (Level, error) {
	switch action {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	case "changePermission":
		return ChangePermission, nil
	default:
		return 0, fault.NewInvalidRequest("unknown action. action=%q", action)
	}
}

// Rule grants Level to every subject in Subjects.
type Rule struct {
	Subjects []string
	Level    Level
}
