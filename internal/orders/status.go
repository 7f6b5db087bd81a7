package orders

// Order statuses as the service spells them.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusShipped   = "SHIPPED"
	StatusDelivered = "DELIVERED"
	StatusCancelled = "CANCELLED"
)

var All = []string{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled}

// validNext is the ordered transition table. CANCELLED is reachable from any
// non-terminal state; DELIVERED and CANCELLED are closed.
var validNext = map[string]map[string]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func ValidStatus(s string) bool {
	_, ok := validNext[s]
	return ok
}

func Terminal(s string) bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

func CanTransition(from, to string) bool {
	return validNext[from][to]
}
