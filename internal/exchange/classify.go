package exchange

import "strings"

// SubmitClass buckets an order submission failure for the gateway.
type SubmitClass int

const (
	// SubmitRetryable covers transient transport failures and anything
	// we cannot positively identify as a client error.
	SubmitRetryable SubmitClass = iota
	// SubmitNonRetryable covers rejections that will repeat on resend.
	SubmitNonRetryable
	// SubmitDuplicate means the exchange already holds an order with
	// this client order id. The original submission succeeded.
	SubmitDuplicate
)

// ClassifySubmit inspects an order submission error. Exchanges report
// these conditions as free text, so matching is on lowercased substrings.
func ClassifySubmit(err error) SubmitClass {
	if err == nil {
		return SubmitRetryable
	}
	msg := strings.ToLower(err.Error())

	for _, phrase := range []string{"already exists", "duplicate", "clientorderid"} {
		if strings.Contains(msg, phrase) {
			return SubmitDuplicate
		}
	}
	for _, phrase := range []string{"insufficient", "invalid", "bad request", "unauthorized", "permission denied"} {
		if strings.Contains(msg, phrase) {
			return SubmitNonRetryable
		}
	}
	return SubmitRetryable
}

// classifyNetwork labels a connectivity failure for logging. The label
// set is stable so log-based alerting can key on it.
func classifyNetwork(err error) string {
	if err == nil {
		return "unknown_network_error"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "connection_timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "network unreachable"), strings.Contains(msg, "network"):
		return "network_unreachable"
	case strings.Contains(msg, "ssl"), strings.Contains(msg, "certificate"), strings.Contains(msg, "tls"):
		return "ssl_error"
	case strings.Contains(msg, "dns"), strings.Contains(msg, "name resolution"), strings.Contains(msg, "no such host"):
		return "dns_resolution"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return "rate_limit"
	default:
		return "unknown_network_error"
	}
}
