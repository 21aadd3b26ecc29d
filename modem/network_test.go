package modem_test

import (
	"testing"
	"time"

	"i4.energy/across/modemgw/modem"
)

func newNetworkFixture(t *testing.T, script map[string][]string) *modem.NetworkManager {
	t.Helper()
	tt := modem.NewTestTransport()
	core := modem.NewCore(tt, modem.CoreConfig{ATTimeout: 2 * time.Second})
	core.Start()
	t.Cleanup(core.Stop)

	scriptModem(t, tt, script)
	return modem.NewNetworkManager(core, nil)
}

func TestNetworkManager(t *testing.T) {
	t.Run("signal quality", func(t *testing.T) {
		mgr := newNetworkFixture(t, map[string][]string{
			"AT+CSQ": {"+CSQ: 18,99", "OK"},
		})

		sq, err := mgr.SignalQuality()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sq.RSSI != 18 {
			t.Errorf("RSSI = %d, want 18", sq.RSSI)
		}
		if dbm, ok := sq.RSSIdBm(); !ok || dbm != -77 {
			t.Errorf("RSSIdBm = %d,%v, want -77,true", dbm, ok)
		}
	})

	t.Run("registration", func(t *testing.T) {
		mgr := newNetworkFixture(t, map[string][]string{
			"AT+CREG?": {`+CREG: 0,5,"1A2B","01F3C4D5"`, "OK"},
		})

		st, err := mgr.RegistrationStatus()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.Stat != modem.RegisteredRoaming || !st.Registered() {
			t.Errorf("got %+v", st)
		}
	})

	t.Run("operator", func(t *testing.T) {
		mgr := newNetworkFixture(t, map[string][]string{
			"AT+COPS?": {`+COPS: 0,0,"Vodafone",7`, "OK"},
		})

		op, err := mgr.Operator()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if op.Operator != "Vodafone" {
			t.Errorf("got %+v", op)
		}
	})

	t.Run("network info", func(t *testing.T) {
		mgr := newNetworkFixture(t, map[string][]string{
			"AT+QNWINFO": {`+QNWINFO: "FDD LTE","26201","LTE BAND 3",1300`, "OK"},
		})

		ni, err := mgr.NetworkInfo()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ni.RAT != "FDD LTE" || ni.CellID != 1300 {
			t.Errorf("got %+v", ni)
		}
	})
}
