package logging

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/simon020286/go-calibration/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FFB454")).
			Padding(0, 1)
	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

// Console renders runner and session events as log lines and shows operator prompts
type Console struct {
	Log              logrus.FieldLogger
	Color            bool
	ShowStartEndTime bool
}

// NewConsole creates a console writing to log
func NewConsole(log logrus.FieldLogger, color, showStartEndTime bool) *Console {
	return &Console{Log: log, Color: color, ShowStartEndTime: showStartEndTime}
}

func (c *Console) style(s lipgloss.Style, text string) string {
	if !c.Color {
		return text
	}
	return s.Render(text)
}

// Prompt shows an instruction the operator has to act on
func (c *Console) Prompt(message string) {
	c.Log.Info(c.style(promptStyle, message))
}

func (c *Console) OnEvent(event models.Event) {
	ordinal := event.Data["ordinal"]
	stamp := event.Timestamp.Format(TimeLayout)

	switch event.Type {
	case models.EventSessionStarted:
		if c.ShowStartEndTime {
			c.Log.Info("Script started on: " + stamp)
		}

	case models.EventSessionCompleted:
		c.Log.Info("Done")
		if c.ShowStartEndTime {
			c.Log.Info("Script ended on: " + stamp)
		}

	case models.EventSessionFailed:
		c.Log.Error(c.style(failStyle, fmt.Sprintf("%v", event.Data["error"])))
		if c.ShowStartEndTime {
			c.Log.Info("Script ended on: " + stamp)
		}

	case models.EventStepStarted:
		c.Log.Infof("Step %v started: %s", ordinal, stamp)
		c.Log.Info(c.style(headerStyle, fmt.Sprintf("STEP %v", ordinal)))

	case models.EventStepFinished:
		entry := c.Log.WithField("passed", event.Data["passed"])
		if d, ok := event.Data["duration"].(time.Duration); ok {
			entry = entry.WithField("duration", d.Round(time.Millisecond))
		}
		if reason, ok := event.Data["reason"].(error); ok && reason != nil {
			entry = entry.WithField("reason", reason.Error())
		}
		entry.Infof("Step %v finished: %s", ordinal, stamp)

	case models.EventStepRetrying:
		c.Log.Infof("Restarting step %v", ordinal)

	case models.EventStepExhausted:
		c.Log.Error(c.style(failStyle, fmt.Sprintf("Failed %v times at step %v", event.Data["attempts"], ordinal)))

	case models.EventRecoveryFailed:
		c.Log.Warnf("Recovery before retrying step %v failed: %v", ordinal, event.Data["error"])
	}
}
