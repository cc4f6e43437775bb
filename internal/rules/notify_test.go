package rules

import (
	"strings"
	"testing"
)

func TestNotificationForStage(t *testing.T) {
	for stage := 1; stage <= 3; stage++ {
		n := NotificationForStage("example.com", stage, ModeDefault)
		if n.Title == "" || n.Message == "" {
			t.Errorf("stage %d: empty notification %+v", stage, n)
		}
	}

	stage1 := NotificationForStage("example.com", 1, ModeDefault)
	if !strings.Contains(stage1.Message, "example.com") {
		t.Errorf("stage 1 message should name the domain: %q", stage1.Message)
	}
}

func TestStage2MessageTones(t *testing.T) {
	balanced := NotificationForStage("example.com", 2, ModeDefault).Message
	if !strings.Contains(balanced, "example.com") {
		t.Errorf("balanced tone should name the domain: %q", balanced)
	}

	study := NotificationForStage("example.com", 2, ModeStudyResearch).Message
	if !strings.Contains(study, "Study-Research") {
		t.Errorf("study tone message unexpected: %q", study)
	}

	ent := NotificationForStage("example.com", 2, ModeEntertainment).Message
	if !strings.Contains(ent, "Entertainment") {
		t.Errorf("entertainment tone message unexpected: %q", ent)
	}

	if balanced == study || study == ent {
		t.Error("stage 2 messages should differ by tone")
	}
}
