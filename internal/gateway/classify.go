package gateway

// Outcome is the classification of a provider failure. It drives the worker's
// single retry decision: throttling is retryable, everything else is terminal.
type Outcome int

const (
	// RetryableThrottled means the provider rejected the send because the
	// sender exceeded its throughput cap; retry with backoff.
	RetryableThrottled Outcome = iota
	// FatalTemplateInvalid means the referenced template is missing or not
	// approved; retrying cannot succeed.
	FatalTemplateInvalid
	// FatalRecipientUnavailable means the recipient cannot be reached on
	// WhatsApp; retrying cannot succeed.
	FatalRecipientUnavailable
	// FatalOther covers every unrecognized code. Unknown errors are not
	// assumed transient.
	FatalOther
)

func (o Outcome) String() string {
	switch o {
	case RetryableThrottled:
		return "retryable_throttled"
	case FatalTemplateInvalid:
		return "fatal_template_invalid"
	case FatalRecipientUnavailable:
		return "fatal_recipient_unavailable"
	default:
		return "fatal_other"
	}
}

// Retryable reports whether the worker may attempt the send again.
func (o Outcome) Retryable() bool {
	return o == RetryableThrottled
}

// Classify maps a gateway error to its retry outcome. The mapping is total:
// every code resolves to exactly one outcome and unrecognized codes always
// land on FatalOther.
func Classify(err *GatewayError) Outcome {
	if err == nil {
		return FatalOther
	}
	switch err.Code {
	case CodeRateLimited:
		return RetryableThrottled
	case CodeTemplateInvalid:
		return FatalTemplateInvalid
	case CodeRecipientUnavailable:
		return FatalRecipientUnavailable
	default:
		return FatalOther
	}
}
