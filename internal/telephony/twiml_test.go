package telephony

import (
	"strings"
	"testing"
)

func TestRenderBridge(t *testing.T) {
	xml, err := RenderBridge("agent-1", "+46850000000")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{`<Dial callerId="+46850000000">`, "<Client>agent-1</Client>"} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
}

func TestRenderBridgeRequiresIdentity(t *testing.T) {
	if _, err := RenderBridge(" ", ""); err == nil {
		t.Fatalf("expected error")
	}
}
