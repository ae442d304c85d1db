package enums

import "fmt"

// CartStatus is the observable state of a user's cart snapshot. A confirmed
// conversion deletes the snapshot, so the cart reads as empty again.
type CartStatus string

const (
	CartStatusEmpty      CartStatus = "empty"
	CartStatusActive     CartStatus = "active"
	CartStatusConverting CartStatus = "converting"
)

var validCartStatuses = []CartStatus{
	CartStatusEmpty,
	CartStatusActive,
	CartStatusConverting,
}

// String implements fmt.Stringer.
func (c CartStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartStatus.
func (c CartStatus) IsValid() bool {
	for _, candidate := range validCartStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCartStatus converts raw input into a CartStatus.
func ParseCartStatus(value string) (CartStatus, error) {
	for _, candidate := range validCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart status %q", value)
}
