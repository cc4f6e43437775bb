package rules

import "fmt"

// StageNotification is the title/message pair for a stage-crossing
// notification.
type StageNotification struct {
	Title   string
	Message string
}

func stage2Message(domain, tone string) string {
	switch tone {
	case "break_focused":
		return "You're in Study-Research mode. A short break can help you reset and continue."
	case "stop_focused":
		return "You're in Entertainment mode. Consider stopping this tab or taking a break now."
	default:
		return fmt.Sprintf("You've spent extended time on %s. Consider a short break.", domain)
	}
}

// NotificationForStage builds the copy for a stage 1-3 notification.
// Stage 4 escalates silently and never notifies.
func NotificationForStage(domain string, stage int, mode string) StageNotification {
	tone := GetModeConfig(mode).PromptTone

	switch stage {
	case 1:
		return StageNotification{
			Title:   "Stage 1: Gentle reminder",
			Message: fmt.Sprintf("%s usage is increasing.", domain),
		}
	case 2:
		return StageNotification{
			Title:   "Stage 2: Take a break",
			Message: stage2Message(domain, tone),
		}
	case 3:
		return StageNotification{
			Title:   "Stage 3: Cooldown started",
			Message: fmt.Sprintf("%s entered cooldown.", domain),
		}
	default:
		return StageNotification{
			Title:   "Browsing warning",
			Message: fmt.Sprintf("%s usage increased.", domain),
		}
	}
}
