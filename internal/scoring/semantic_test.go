package scoring

import (
	"testing"
)

func TestExtractEstimate(t *testing.T) {
	output := `{"complexity": 7.5, "estimated_hours": 2, "risk": "medium"}`

	est, err := extractEstimate([]byte(output))
	if err != nil {
		t.Fatalf("extractEstimate() error = %v", err)
	}
	if est.Complexity != 7.5 {
		t.Errorf("Complexity = %v, want 7.5", est.Complexity)
	}
	if est.Hours != 2 {
		t.Errorf("Hours = %v, want 2", est.Hours)
	}
	if est.Risk != "medium" {
		t.Errorf("Risk = %q, want medium", est.Risk)
	}
}

func TestExtractEstimate_WrappedInProse(t *testing.T) {
	output := "Here is my estimate:\n\n```json\n{\"complexity\": 4, \"estimated_hours\": 1.5, \"risk\": \"low\"}\n```\n\nLet me know if you need more detail."

	est, err := extractEstimate([]byte(output))
	if err != nil {
		t.Fatalf("extractEstimate() error = %v", err)
	}
	if est.Complexity != 4 {
		t.Errorf("Complexity = %v, want 4", est.Complexity)
	}
	if est.Risk != "low" {
		t.Errorf("Risk = %q, want low", est.Risk)
	}
}

func TestExtractEstimate_NoJSON(t *testing.T) {
	if _, err := extractEstimate([]byte("I cannot estimate this task.")); err == nil {
		t.Error("expected error for output without JSON")
	}
}
