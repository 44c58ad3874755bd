package rbac

import "strconv"

// Clearance is the rank an actor or role carries. Bypass outranks every
// non-bypass clearance regardless of Level.
type Clearance struct {
	Level  int
	Bypass bool
}

// Outranks reports whether c is strictly higher than other. Ties never
// outrank, and nothing outranks a bypass clearance except bypass itself.
func (c Clearance) Outranks(other Clearance) bool {
	if c.Bypass {
		return true
	}
	if other.Bypass {
		return false
	}
	return c.Level > other.Level
}

// Max returns the higher of c and other.
func (c Clearance) Max(other Clearance) Clearance {
	if c.Bypass || other.Bypass {
		return Clearance{Bypass: true}
	}
	if other.Level > c.Level {
		return other
	}
	return c
}

func (c Clearance) String() string {
	if c.Bypass {
		return "bypass"
	}
	return strconv.Itoa(c.Level)
}
