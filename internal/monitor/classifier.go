package monitor

// Classifier decides whether a participant's role set marks them as an
// external (monitored) or internal (qualifying responder) participant.
// Pure; configured once from the policy's role identifiers.
type Classifier struct {
	external map[string]struct{}
	internal map[string]struct{}
}

// NewClassifier builds a classifier from configured role identifiers.
func NewClassifier(externalRoles, internalRoles []string) *Classifier {
	c := &Classifier{
		external: make(map[string]struct{}, len(externalRoles)),
		internal: make(map[string]struct{}, len(internalRoles)),
	}
	for _, r := range externalRoles {
		c.external[r] = struct{}{}
	}
	for _, r := range internalRoles {
		c.internal[r] = struct{}{}
	}
	return c
}

// IsInternal reports whether the role set contains a designated staff role.
func (c *Classifier) IsInternal(roles []string) bool {
	for _, r := range roles {
		if _, ok := c.internal[r]; ok {
			return true
		}
	}
	return false
}

// IsExternal reports whether the role set marks a monitored participant.
// A staff member who also holds a client-facing role is still a qualifying
// responder, never a monitoring subject: internal takes precedence.
func (c *Classifier) IsExternal(roles []string) bool {
	if c.IsInternal(roles) {
		return false
	}
	for _, r := range roles {
		if _, ok := c.external[r]; ok {
			return true
		}
	}
	return false
}
