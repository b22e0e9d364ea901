package model

// Status is the lifecycle state of a waiting item.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCalled    Status = "called"
	StatusAttended  Status = "attended"
	StatusCancelled Status = "cancelled"
)

// rank orders statuses for forward-only transitions. Attended and cancelled
// are both terminal.
func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusCalled:
		return 1
	case StatusAttended, StatusCancelled:
		return 2
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Active reports whether an item with this status counts towards its class.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// CanAdvanceTo reports whether a transition from s to next moves forward.
func (s Status) CanAdvanceTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// WaitingItem is one queue entry as served by the backend.
type WaitingItem struct {
	ID            int64  `json:"id"`
	WaitingNumber int    `json:"waiting_number"`
	ClassID       int64  `json:"class_id"`
	ClassOrder    int    `json:"class_order"`
	DisplayName   string `json:"display_name"`
	Phone         string `json:"phone"`
	Status        Status `json:"status"`
	IsEmptySeat   bool   `json:"is_empty_seat"`
	CallCount     int    `json:"call_count"`
	// LastCalledAt is kept as the raw wire string; the backend does not
	// guarantee a zone suffix.
	LastCalledAt string `json:"last_called_at,omitempty"`
}

// ClassSession is a grouping bucket (time slot / session).
type ClassSession struct {
	ID           int64  `json:"id"`
	ClassName    string `json:"class_name"`
	CurrentCount int    `json:"current_count"`
	IsClosed     bool   `json:"is_closed"`
}

// Role identifies the kind of screen holding a stream connection.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleBoard     Role = "board"
	RoleReception Role = "reception"
)

// ConnectionRecord is one live screen connection reported by the server.
type ConnectionRecord struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`
	ConnectedAt string `json:"connected_at"`
}

// Direction names the adjacent class a move targets.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// Step returns -1 for prev and +1 for next.
func (d Direction) Step() int {
	switch d {
	case DirectionPrev:
		return -1
	case DirectionNext:
		return 1
	}
	return 0
}

// SeatPosition says on which side of an anchor an empty seat goes.
type SeatPosition string

const (
	SeatBefore SeatPosition = "before"
	SeatAfter  SeatPosition = "after"
)
