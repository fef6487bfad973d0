package ua

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		in   string
		want NodeID
	}{
		{"i=2258", NS0(2258)},
		{"ns=2;i=1001", NewNumericNodeID(2, 1001)},
		{"ns=1;s=Demo.Temp", NewStringNodeID(1, "Demo.Temp")},
		{"s=NoNamespace", NewStringNodeID(0, "NoNamespace")},
	}
	for _, tt := range tests {
		got, err := ParseNodeID(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), tt.in)
	}
}

func TestParseNodeIDGuid(t *testing.T) {
	g := NewGuid()
	got, err := ParseNodeID("ns=3;g=" + g.String())
	require.NoError(t, err)
	assert.True(t, NewGuidNodeID(3, g).Equal(got))
}

func TestParseNodeIDErrors(t *testing.T) {
	bad := []string{"", "x=1", "ns=2", "ns=notanumber;i=1", "i=notanumber", "ns=99999;i=1"}
	for _, in := range bad {
		_, err := ParseNodeID(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestNodeIDString(t *testing.T) {
	assert.Equal(t, "i=84", NodeIDRootFolder.String())
	assert.Equal(t, "ns=2;s=Demo", NewStringNodeID(2, "Demo").String())
	assert.Equal(t, "i=0", NodeID{}.String())
	assert.True(t, NodeID{}.IsNull())
	assert.False(t, NS0(1).IsNull())
}

func TestDateTimeConversion(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 30, 45, 123456700, time.UTC)
	dt := DateTimeFromTime(now)
	assert.Equal(t, now, dt.Time())

	assert.True(t, DateTime(0).Time().IsZero())
	assert.Equal(t, DateTime(0), DateTimeFromTime(time.Time{}))
}

func TestByteStringStates(t *testing.T) {
	assert.True(t, ByteString(nil).IsNull())
	assert.False(t, ByteString{}.IsNull())
	assert.False(t, ByteString{}.Equal(nil))
	assert.True(t, ByteString{1}.Equal(ByteString{1}))

	assert.Nil(t, ByteString(nil).Clone())
	c := ByteString{1, 2}.Clone()
	assert.Equal(t, ByteString{1, 2}, c)
}

func TestStatusCodeSeverity(t *testing.T) {
	assert.Equal(t, SeverityGood, StatusGood.Severity())
	assert.True(t, StatusGood.IsGood())
	assert.Equal(t, SeverityUncertain, StatusUncertainInitialValue.Severity())
	assert.True(t, StatusUncertainInitialValue.IsUncertain())
	assert.Equal(t, SeverityBad, StatusBadNodeIDUnknown.Severity())
	assert.True(t, StatusBadNodeIDUnknown.IsBad())
}

func TestStatusCodeName(t *testing.T) {
	assert.Equal(t, "Good", StatusGood.Name())
	assert.Equal(t, "BadNodeIdUnknown", StatusBadNodeIDUnknown.Name())
	// unknown codes fall back to severity plus hex
	assert.Equal(t, "Bad(0x80FF0000)", StatusCode(0x80FF0000).Name())
}

func TestQualifiedNameString(t *testing.T) {
	assert.Equal(t, "Temp", NewQualifiedName(0, "Temp").String())
	assert.Equal(t, "2:Temp", NewQualifiedName(2, "Temp").String())
}
