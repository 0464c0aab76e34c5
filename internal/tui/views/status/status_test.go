package status

import (
	"strings"
	"testing"
)

func TestView(t *testing.T) {
	m := New()
	m.Width = 160
	m.Agent = "nex"
	m.Viewers = 3
	if v := m.View(); !strings.Contains(v, "Connecting") || !strings.Contains(v, "3 watching") {
		t.Errorf("disconnected view missing fields:\n%s", v)
	}

	m.Connected = true
	m.Status = "live"
	v := m.View()
	if !strings.Contains(v, "Connected") || !strings.Contains(v, "live") {
		t.Errorf("connected view missing fields:\n%s", v)
	}
}
