package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// NotificationSender sends one desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

type linuxSender struct{}

func (linuxSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

type macOSSender struct{}

func (macOSSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier sends desktop notifications where the platform supports
// them and always echoes to the console
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks the sender for the current platform
func NewNotifier() *Notifier {
	var sender NotificationSender

	switch runtime.GOOS {
	case "linux":
		sender = linuxSender{}
	case "darwin":
		sender = macOSSender{}
	}

	return &Notifier{sender: sender}
}

// SendNotification announces an event; notification failures are not
// worth surfacing
func (n *Notifier) SendNotification(title, message string) {
	if !IsQuietMode() {
		fmt.Printf("\n%s: %s\n", Cyan(title), Yellow(message))
	}

	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}

// SendError announces a failure
func (n *Notifier) SendError(title, message string) {
	fmt.Printf("\n%s: %s\n", Red(title), Red(message))

	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}
