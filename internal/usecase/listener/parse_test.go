package listener

import "testing"

func TestParseEvent(t *testing.T) {
	ev, ok := parseEvent("Program log: RepaymentMade tracking=5f1c0a status=confirmed")
	if !ok {
		t.Fatal("known event not parsed")
	}
	if ev.Name != "RepaymentMade" {
		t.Errorf("name = %q", ev.Name)
	}
	if ev.TrackingID() != "5f1c0a" {
		t.Errorf("tracking = %q", ev.TrackingID())
	}
	if ev.Failed() {
		t.Error("confirmed event reported as failed")
	}
}

func TestParseEvent_FailedWithReason(t *testing.T) {
	ev, ok := parseEvent("Program log: WithdrawalSent tracking=abc status=failed reason=slippage")
	if !ok {
		t.Fatal("event not parsed")
	}
	if !ev.Failed() {
		t.Error("failed status not detected")
	}
	if ev.Reason() != "slippage" {
		t.Errorf("reason = %q", ev.Reason())
	}
}

func TestParseEvent_Rejects(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"unknown event", "Program log: Instruction tracking=abc"},
		{"empty line", ""},
		{"prefix only", "Program log: "},
		{"runtime noise", "Program consumed 1400 of 200000 compute units"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := parseEvent(tc.line); ok {
				t.Errorf("parseEvent(%q) accepted", tc.line)
			}
		})
	}
}

func TestParseEvent_MalformedFieldsSkipped(t *testing.T) {
	ev, ok := parseEvent("Program log: DepositReceived garbage tracking=xyz =broken")
	if !ok {
		t.Fatal("event not parsed")
	}
	if ev.TrackingID() != "xyz" {
		t.Errorf("tracking = %q", ev.TrackingID())
	}
	if _, present := ev.Fields[""]; present {
		t.Error("empty key retained")
	}
	if _, present := ev.Fields["garbage"]; present {
		t.Error("token without = retained as field")
	}
}
