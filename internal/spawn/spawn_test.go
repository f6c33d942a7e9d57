package spawn

import (
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if !strings.HasPrefix(string(got), "us.anthropic.") {
		t.Errorf("expected cross-region inference profile, got %s", got)
	}

	// Unknown models pass through untouched.
	custom := anthropic.Model("my-custom-model")
	if translateModelForBedrock(custom) != custom {
		t.Error("unknown models must pass through")
	}
}

func TestResultAccepted(t *testing.T) {
	if !(Result{Status: StatusAccepted}).Accepted() {
		t.Error("accepted result must report Accepted")
	}
	if (Result{Status: StatusRejected, Error: "no"}).Accepted() {
		t.Error("rejected result must not report Accepted")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{}, nil); err == nil {
		t.Error("expected error without an API key")
	}
}
