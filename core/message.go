package core

// Message is a payload in transit along a link. Its life is copied from the
// link weight when it is created and counts down one per step.
type Message struct {
	Payload    any
	From       NodeID
	To         NodeID
	InitLife   int
	RemainLife int
}

// NewMessage creates a message with the given transit time. Messages never
// wrap other messages; the inner payload is taken instead.
func NewMessage(payload any, from, to NodeID, life int) *Message {
	if inner, ok := payload.(*Message); ok {
		payload = inner.Payload
	}
	return &Message{
		Payload:    payload,
		From:       from,
		To:         to,
		InitLife:   life,
		RemainLife: life,
	}
}

// Arrive reports whether the message has reached its destination.
func (m *Message) Arrive() bool { return m.RemainLife <= 0 }

// Progress returns the fraction of the transit completed, in [0, 1].
func (m *Message) Progress() float64 {
	if m.InitLife <= 0 {
		return 1
	}
	return 1 - float64(m.RemainLife)/float64(m.InitLife)
}

// Update advances the message by one step.
func (m *Message) Update(int) {
	if m.RemainLife > 0 {
		m.RemainLife--
	}
}

// Position interpolates the message between its endpoints' positions.
func (m *Message) Position(from, to Vec2) Vec2 {
	return from.Add(to.Sub(from).Scale(m.Progress()))
}
