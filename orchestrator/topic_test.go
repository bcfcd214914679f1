package orchestrator

import "testing"

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		target  string
		want    bool
	}{
		{"robot/position/home", "robot/position/home", true},
		{"robot/position/home", "robot/position/away", false},
		{"robot/+/home", "robot/position/home", true},
		{"robot/+/home", "robot/hand/home", true},
		{"robot/+/home", "robot/position/away", false},
		{"robot/#", "robot/position/home", true},
		{"robot/#", "robot/position/home/extra", true},
		{"robot/#", "robot", false},
		{"#", "anything/at/all", true},
		{"robot/position", "robot/position/home", false},
		{"robot/position/home", "robot/position", false},
	}

	for _, c := range cases {
		if got := MatchTopic(c.pattern, c.target); got != c.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", c.pattern, c.target, got, c.want)
		}
	}
}

func TestValidateTopicPattern(t *testing.T) {
	valid := []string{"robot/position/home", "robot/+/home", "robot/#", "#"}
	for _, p := range valid {
		if err := ValidateTopicPattern(p); err != nil {
			t.Errorf("ValidateTopicPattern(%q) unexpected error: %v", p, err)
		}
	}

	invalid := []string{"robot/#/home", "robot//home", ""}
	for _, p := range invalid {
		if err := ValidateTopicPattern(p); err == nil {
			t.Errorf("ValidateTopicPattern(%q) expected an error, got nil", p)
		}
	}
}
