package types

// Envelope is the uniform response of every read and write operation.
type Envelope struct {
	// Result holds a Record for point lookups and mutations, or a []Record
	// for list queries. It is omitted when the caller did not ask for rows.
	Result any `json:"result,omitempty"`

	// Count holds the number of matches before pagination when requested.
	Count *int `json:"count,omitempty"`

	Found bool `json:"found"`

	// OldVal holds the prior version of a mutated record.
	OldVal Record `json:"old_val,omitempty"`
}

// Records returns the list result, or nil if Result is not a list.
func (e Envelope) Records() []Record {
	rows, _ := e.Result.([]Record)
	return rows
}

// Record returns the single-record result, or nil if Result is not a record.
func (e Envelope) Record() Record {
	rec, _ := e.Result.(Record)
	return rec
}

// NotFound returns the zero-result envelope.
func NotFound() Envelope {
	return Envelope{Found: false}
}

// FromChange builds the mutation envelope for a store change. The result is
// the new value, or the old value when the record was deleted. A zero change
// yields NotFound.
func FromChange(c Change) Envelope {
	if c.IsZero() {
		return NotFound()
	}
	result := c.NewVal
	if result == nil {
		result = c.OldVal
	}
	return Envelope{Result: result, Found: true, OldVal: c.OldVal}
}
