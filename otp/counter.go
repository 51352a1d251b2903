package otp

// Counters is the replay-ordering pair carried by every token. Counter is
// the primary key and Use the tiebreaker; Use resets to zero when the device
// power-cycles while Counter increments, so the pair orders all tokens a
// device ever produced.
type Counters struct {
	Counter int64
	Use     int64
}

func (a Counters) Eq(b Counters) bool {
	return a.Counter == b.Counter && a.Use == b.Use
}

func (a Counters) Gt(b Counters) bool {
	return a.Counter > b.Counter || (a.Counter == b.Counter && a.Use > b.Use)
}

func (a Counters) Gte(b Counters) bool {
	return a.Counter > b.Counter || (a.Counter == b.Counter && a.Use >= b.Use)
}
