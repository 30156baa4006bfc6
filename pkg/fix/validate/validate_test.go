package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fixgate/pkg/fix"
)

// newMsg builds a message with a complete header.
func newMsg(msgType string) *fix.Message {
	m := fix.NewMessage(msgType)
	m.SetString(fix.TagBeginString, "FIX.4.4")
	m.SetString(fix.TagSenderCompID, "CLIENT")
	m.SetString(fix.TagTargetCompID, "SERVER")
	m.SetUint32(fix.TagMsgSeqNum, 1)
	m.SetString(fix.TagSendingTime, "20231201-10:00:00")
	return m
}

func TestHeaderValidation(t *testing.T) {
	t.Run("complete header passes", func(t *testing.T) {
		m := newMsg(fix.MsgTypeHeartbeat)
		assert.True(t, Validate(m).OK())
	})

	t.Run("missing SenderCompID", func(t *testing.T) {
		m := newMsg(fix.MsgTypeHeartbeat)
		m.Delete(fix.TagSenderCompID)

		res := Validate(m)
		require.False(t, res.OK())
		assert.Equal(t, fix.TagSenderCompID, res.First().Tag)
		assert.Equal(t, ReasonRequiredTagMissing, res.First().Reason)
	})

	t.Run("empty SendingTime counts as missing", func(t *testing.T) {
		m := newMsg(fix.MsgTypeHeartbeat)
		m.SetString(fix.TagSendingTime, "")

		res := Validate(m)
		require.False(t, res.OK())
		assert.Equal(t, fix.TagSendingTime, res.First().Tag)
	})

	t.Run("zero MsgSeqNum rejected", func(t *testing.T) {
		m := newMsg(fix.MsgTypeHeartbeat)
		m.SetUint32(fix.TagMsgSeqNum, 0)

		res := Validate(m)
		require.False(t, res.OK())
		assert.Equal(t, ReasonValueIncorrect, res.First().Reason)
	})
}

func TestPerTypeRequirements(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		present map[int]string
		missing int
	}{
		{
			name:    "logon needs HeartBtInt",
			msgType: fix.MsgTypeLogon,
			present: map[int]string{fix.TagEncryptMethod: "0"},
			missing: fix.TagHeartBtInt,
		},
		{
			name:    "test request needs TestReqID",
			msgType: fix.MsgTypeTestRequest,
			present: map[int]string{},
			missing: fix.TagTestReqID,
		},
		{
			name:    "resend request needs EndSeqNo",
			msgType: fix.MsgTypeResendRequest,
			present: map[int]string{fix.TagBeginSeqNo: "1"},
			missing: fix.TagEndSeqNo,
		},
		{
			name:    "sequence reset needs NewSeqNo",
			msgType: fix.MsgTypeSequenceReset,
			present: map[int]string{},
			missing: fix.TagNewSeqNo,
		},
		{
			name:    "reject needs RefSeqNum",
			msgType: fix.MsgTypeReject,
			present: map[int]string{},
			missing: fix.TagRefSeqNum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMsg(tt.msgType)
			for tag, v := range tt.present {
				m.SetString(tag, v)
			}

			res := Validate(m)
			require.False(t, res.OK())
			assert.Equal(t, tt.missing, res.First().Tag)
			assert.Equal(t, ReasonRequiredTagMissing, res.First().Reason)
		})
	}
}

func TestNewOrderSingle(t *testing.T) {
	order := func() *fix.Message {
		m := newMsg(fix.MsgTypeNewOrderSingle)
		m.SetString(fix.TagClOrdID, "ORD-1")
		m.SetString(fix.TagSymbol, "EURUSD")
		m.SetString(fix.TagSide, "1")
		m.SetString(fix.TagOrderQty, "100")
		m.SetString(fix.TagOrdType, "1")
		return m
	}

	t.Run("market order passes without price", func(t *testing.T) {
		assert.True(t, Validate(order()).OK())
	})

	t.Run("limit order requires price", func(t *testing.T) {
		m := order()
		m.SetString(fix.TagOrdType, "2")

		res := Validate(m)
		require.False(t, res.OK())
		assert.Equal(t, fix.TagPrice, res.First().Tag)
	})

	t.Run("limit order with price passes", func(t *testing.T) {
		m := order()
		m.SetString(fix.TagOrdType, "2")
		m.SetString(fix.TagPrice, "1.0842")
		assert.True(t, Validate(m).OK())
	})
}

func TestFieldFormats(t *testing.T) {
	t.Run("bad boolean", func(t *testing.T) {
		m := newMsg(fix.MsgTypeHeartbeat)
		m.SetString(fix.TagPossDupFlag, "yes")

		res := Validate(m)
		require.False(t, res.OK())
		assert.Equal(t, ReasonValueIncorrect, res.First().Reason)
	})

	t.Run("bad SendingTime format", func(t *testing.T) {
		m := newMsg(fix.MsgTypeHeartbeat)
		m.SetString(fix.TagSendingTime, "01-12-2023 10:00")

		res := Validate(m)
		require.False(t, res.OK())
	})

	t.Run("millisecond SendingTime accepted", func(t *testing.T) {
		m := newMsg(fix.MsgTypeHeartbeat)
		m.SetString(fix.TagSendingTime, "20231201-10:00:00.123")
		assert.True(t, Validate(m).OK())
	})

	t.Run("non-numeric HeartBtInt", func(t *testing.T) {
		m := newMsg(fix.MsgTypeLogon)
		m.SetString(fix.TagEncryptMethod, "0")
		m.SetString(fix.TagHeartBtInt, "thirty")

		res := Validate(m)
		require.False(t, res.OK())
	})
}

func TestUnknownMsgTypePassesHeaderOnly(t *testing.T) {
	m := newMsg("ZZ")
	assert.True(t, Validate(m).OK())
}
