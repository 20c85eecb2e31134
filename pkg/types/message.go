package types

// Message is a single channel record. Identity is the absolute append
// index in the channel file; records are immutable once written.
type Message struct {
	Handle    string
	Timestamp int64 // unix seconds; 0 when the record predates timestamps
	Content   string
}

// Participant is one entry of the channel header's participant table.
type Participant struct {
	Handle string
	Count  int
}
