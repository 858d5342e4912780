// pkg/core/movement.go
package core

// MovementFlags is the standard movement flag bitset reported by the client.
type MovementFlags uint32

// Standard movement flags.
const (
	MoveForward MovementFlags = 1 << iota
	MoveBackward
	MoveStrafeLeft
	MoveStrafeRight
	MoveLeft
	MoveRight
	MovePitchUp
	MovePitchDown
	MoveWalkMode
	MoveOnTransport
	MoveDisableGravity
	MoveRoot
	MoveFalling
	MoveFallingFar
	MovePendingStop
	MovePendingStrafeStop
	MovePendingForward
	MovePendingBackward
	MovePendingStrafeLeft
	MovePendingStrafeRight
	MovePendingRoot
	MoveSwimming
	MoveAscending
	MoveDescending
	MoveCanFly
	MoveFlying
)

// Empty reports whether no flag is set.
func (f MovementFlags) Empty() bool { return f == 0 }

// Has reports whether every bit of flag is set.
func (f MovementFlags) Has(flag MovementFlags) bool { return f&flag == flag }

// ExtraMovementFlags is the extended movement flag bitset.
type ExtraMovementFlags uint16

// Extended movement flags.
const (
	ExtraNoStrafe ExtraMovementFlags = 1 << iota
	ExtraNoJumping
	ExtraUnknown3
	ExtraFullSpeedTurning
	ExtraFullSpeedPitching
	ExtraAlwaysAllowPitching
	ExtraUnknown7
	ExtraUnknown8
	ExtraUnknown9
	ExtraUnknown10
	ExtraInterpolatedMovement
	ExtraInterpolatedTurning
	ExtraInterpolatedPitching
)

// Empty reports whether no flag is set.
func (f ExtraMovementFlags) Empty() bool { return f == 0 }

// Has reports whether every bit of flag is set.
func (f ExtraMovementFlags) Has(flag ExtraMovementFlags) bool { return f&flag == flag }

// MovementInfo is the last movement snapshot reported by the client.
// It is a value type and is always replaced as a whole.
type MovementInfo struct {
	Flags       MovementFlags      `json:"flags"`
	ExtraFlags  ExtraMovementFlags `json:"extraFlags"`
	Timestamp   uint32             `json:"timestamp"`
	Position    Vector3            `json:"position"`
	Orientation float32            `json:"orientation"`
	FallTime    uint32             `json:"fallTime"`
}

// Placement returns the snapshot's location and facing.
func (m MovementInfo) Placement() Position {
	return Position{Position: m.Position, Orientation: m.Orientation}
}
