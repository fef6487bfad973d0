package ua

import "fmt"

// DataValue is a Variant together with its quality status and
// timestamps. The Has flags mirror the protocol's presence bits: a field
// is meaningful only when its flag is set.
type DataValue struct {
	Value           Variant
	Status          StatusCode
	SourceTimestamp DateTime
	ServerTimestamp DateTime

	HasValue           bool
	HasStatus          bool
	HasSourceTimestamp bool
	HasServerTimestamp bool
}

// NewDataValue wraps a Variant with Good status and a source timestamp of
// now.
func NewDataValue(v Variant) DataValue {
	return DataValue{
		Value:              v,
		Status:             StatusGood,
		SourceTimestamp:    DateTimeNow(),
		HasValue:           true,
		HasStatus:          true,
		HasSourceTimestamp: true,
	}
}

// Clone returns an owned deep copy.
func (d DataValue) Clone() DataValue {
	out := d
	out.Value = d.Value.Clone()
	return out
}

// Equal reports deep equality including presence flags.
func (d DataValue) Equal(o DataValue) bool {
	if d.HasValue != o.HasValue || d.HasStatus != o.HasStatus ||
		d.HasSourceTimestamp != o.HasSourceTimestamp || d.HasServerTimestamp != o.HasServerTimestamp {
		return false
	}
	if d.HasValue && !d.Value.Equal(o.Value) {
		return false
	}
	if d.HasStatus && d.Status != o.Status {
		return false
	}
	if d.HasSourceTimestamp && d.SourceTimestamp != o.SourceTimestamp {
		return false
	}
	if d.HasServerTimestamp && d.ServerTimestamp != o.ServerTimestamp {
		return false
	}
	return true
}

func (d DataValue) String() string {
	if !d.HasValue {
		return fmt.Sprintf("DataValue(%s)", d.Status)
	}
	return fmt.Sprintf("DataValue(%s, %s)", d.Value, d.Status)
}
