package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/jkaflik/shuttercontrol/internal/settings"
)

const helpText = "Available commands:\n" +
	"*`<hh:mm>`*: Set wake up time\n" +
	"*`off`*: Disable wake up time\n" +
	"*`dawn`*: Close at dawn\n" +
	"*`nodawn`*: Don't close at dawn\n" +
	"*`depression civil|nautical|astronomical`*:\n" +
	"    Set depression for dawn time calculation\n" +
	"*`depression <degrees>`*: Set a custom depression\n" +
	"*`latest <hh:mm|off>`*:\n" +
	"    Close at that time, even if before dawn\n" +
	"*`up`*: Open shutters now\n" +
	"*`down`*: Close shutters now\n" +
	"*`status`*: Print settings and next event\n" +
	"*`help`*: Print this help"

// HelpReply lists the commands understood by Parse.
func HelpReply() Reply {
	return Reply{Text: helpText, Markdown: true}
}

// StatusReply renders st with values in MarkdownV2 code spans.
func StatusReply(st Status) Reply {
	return Reply{Text: render(st, codeSpan), Markdown: true}
}

// StatusText renders st as plain text.
func StatusText(st Status) string {
	return render(st, func(s string) string { return s })
}

// FiredText announces an automatic actuation.
func FiredText(action scheduler.Action) string {
	if action == scheduler.Open {
		return "Opening shutters..."
	}
	return "Closing shutters..."
}

func render(st Status, code func(string) string) string {
	var b strings.Builder

	b.WriteString("Settings:\n")
	b.WriteString(code(settingsText(st.Settings)))
	b.WriteString("\n\n")

	if st.Next == nil {
		b.WriteString("No next event scheduled")
	} else {
		b.WriteString("Next event:\n")
		b.WriteString(code(fmt.Sprintf("%s at %s",
			strings.ToUpper(string(st.Next.Action)),
			st.Next.At.Format(scheduler.TimestampLayout))))
	}

	if st.Shutter != "" {
		b.WriteString("\n\nShutter:\n")
		b.WriteString(code(string(st.Shutter)))
	}

	return b.String()
}

func settingsText(s settings.Settings) string {
	var lines []string

	if s.CloseAtDawn {
		lines = append(lines, "Close at dawn = ON")
		if s.Latest != nil {
			lines = append(lines, "Latest at: "+s.Latest.String())
		}
		lines = append(lines, "Depression = "+DepressionName(s.Depression))
	} else {
		lines = append(lines, "Close at dawn = OFF")
	}

	if s.OpenAt != nil {
		lines = append(lines, "Wakeup time = "+s.OpenAt.String())
	} else {
		lines = append(lines, "Wakeup time = OFF")
	}

	return strings.Join(lines, "\n")
}

// DepressionName names the twilight presets and prints anything else in degrees.
func DepressionName(degrees float64) string {
	switch degrees {
	case settings.Civil:
		return "civil"
	case settings.Nautical:
		return "nautical"
	case settings.Astronomical:
		return "astronomical"
	}

	return strconv.FormatFloat(degrees, 'g', -1, 64) + "°"
}

var codeEscaper = strings.NewReplacer("\\", "\\\\", "`", "\\`")

func codeSpan(s string) string {
	return "`" + codeEscaper.Replace(s) + "`"
}

type EventView struct {
	Action scheduler.Action `json:"action"`
	At     time.Time        `json:"at"`
}

type SettingsView struct {
	CloseAtDawn bool    `json:"close_at_dawn"`
	OpenAt      *string `json:"open_at"`
	Depression  float64 `json:"depression"`
	Latest      *string `json:"latest"`
}

// StatusView is the JSON form of Status.
type StatusView struct {
	Settings  SettingsView `json:"settings"`
	NextEvent *EventView   `json:"next_event"`
	Shutter   string       `json:"shutter"`
}

func NewEventView(ev *scheduler.Event) *EventView {
	if ev == nil {
		return nil
	}
	return &EventView{Action: ev.Action, At: ev.At}
}

func NewSettingsView(s settings.Settings) SettingsView {
	v := SettingsView{
		CloseAtDawn: s.CloseAtDawn,
		Depression:  s.Depression,
	}
	if s.OpenAt != nil {
		t := s.OpenAt.String()
		v.OpenAt = &t
	}
	if s.Latest != nil {
		t := s.Latest.String()
		v.Latest = &t
	}
	return v
}

func NewStatusView(st Status) StatusView {
	return StatusView{
		Settings:  NewSettingsView(st.Settings),
		NextEvent: NewEventView(st.Next),
		Shutter:   string(st.Shutter),
	}
}
