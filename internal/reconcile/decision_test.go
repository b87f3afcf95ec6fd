package reconcile

import "testing"

func TestDecide(t *testing.T) {
	yes, no := true, false
	cases := []struct {
		name string
		obs  Observation
		want Decision
	}{
		{"self wins over everything", Observation{Self: true, MirrorActive: true, Ledger: &yes}, Rejected},
		{"mirror active blocks", Observation{MirrorActive: true}, Blocked},
		{"mirror active blocks regardless of ledger", Observation{MirrorActive: true, Ledger: &no}, Blocked},
		{"ledger unknown", Observation{}, CheckLedger},
		{"ledger empty", Observation{Ledger: &no}, Proceed},
		{"ledger has attestation", Observation{Ledger: &yes}, Recoverable},
		{"already recorded", Observation{Ledger: &yes, Recorded: true}, NoOp},
	}
	for _, tc := range cases {
		if got := Decide(tc.obs); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}
