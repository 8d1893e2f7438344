package listener

import (
	"strings"
)

// Program log lines carry one event name followed by key=value pairs, e.g.
//
//	Program log: RepaymentMade tracking=5f1c... status=confirmed
//
// The tracking key is the correlation id the transfer memo embedded at
// submission time.
type Event struct {
	Name   string
	Fields map[string]string
}

const logPrefix = "Program log: "

// domain events forwarded to reconciliation; anything else is skipped
var knownEvents = map[string]struct{}{
	"LoanCreated":           {},
	"RepaymentMade":         {},
	"CollateralLiquidated":  {},
	"DepositReceived":       {},
	"WithdrawalSent":        {},
	"AllocationTransferred": {},
}

func parseEvent(line string) (Event, bool) {
	line = strings.TrimPrefix(strings.TrimSpace(line), logPrefix)
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Event{}, false
	}
	name := tokens[0]
	if _, ok := knownEvents[name]; !ok {
		return Event{}, false
	}
	ev := Event{Name: name, Fields: make(map[string]string, len(tokens)-1)}
	for _, tok := range tokens[1:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		ev.Fields[k] = v
	}
	return ev, true
}

func (e Event) TrackingID() string { return e.Fields["tracking"] }

func (e Event) Failed() bool { return e.Fields["status"] == "failed" }

func (e Event) Reason() string { return e.Fields["reason"] }
