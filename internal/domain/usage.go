package domain

// CounterKind names an independent usage counter namespace.
type CounterKind string

const (
	// KindCallSeconds accumulates voice-call seconds.
	KindCallSeconds CounterKind = "call_seconds"
	// KindChatMessages counts answered chat messages.
	KindChatMessages CounterKind = "chat_messages"
	// KindManualUnblocks counts manual unblocks.
	KindManualUnblocks CounterKind = "manual_unblocks"
	// KindOTPSends counts OTP send attempts per phone.
	KindOTPSends CounterKind = "otp_sends"
)

// Valid reports whether k is a known counter kind.
func (k CounterKind) Valid() bool {
	switch k {
	case KindCallSeconds, KindChatMessages, KindManualUnblocks, KindOTPSends:
		return true
	}
	return false
}
