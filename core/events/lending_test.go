package events

import "testing"

func TestLendingRepaidAttributes(t *testing.T) {
	evt := LendingRepaid{Account: "lend1xyz", Amount: "1100", InterestPaid: "100", TotalDue: "1100"}.Event()
	if evt.Type != TypeLendingRepaid {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	want := map[string]string{
		"action":        ActionRepayLoan,
		"amount":        "1100",
		"interest_paid": "100",
		"total_due":     "1100",
		"account":       "lend1xyz",
	}
	for k, v := range want {
		if evt.Attributes[k] != v {
			t.Fatalf("attribute %s: got %q want %q", k, evt.Attributes[k], v)
		}
	}
}

func TestLendingDepositOmitsBlankOptionalAttributes(t *testing.T) {
	evt := LendingCollateralDeposited{Amount: "5"}.Event()
	if _, ok := evt.Attributes["account"]; ok {
		t.Fatalf("blank account should be omitted")
	}
	if evt.Attributes["action"] != ActionDepositCollateral || evt.Attributes["amount"] != "5" {
		t.Fatalf("unexpected attributes %v", evt.Attributes)
	}
}

func TestRecorderCollectsEvents(t *testing.T) {
	var rec Recorder
	var emitter Emitter = &rec
	emitter.Emit(LendingRateUpdated{Owner: "lend1owner", NewRate: "0.1"})
	emitter.Emit(nil)
	if len(rec.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(rec.Events))
	}
	if rec.Events[0].Attributes["new_rate"] != "0.1" {
		t.Fatalf("unexpected new_rate %q", rec.Events[0].Attributes["new_rate"])
	}
}
