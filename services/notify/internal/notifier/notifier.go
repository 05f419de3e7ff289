package notifier

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/diagnosis/autoescola/internal/platform/mailer"
	"github.com/diagnosis/autoescola/internal/wizard"
	"github.com/diagnosis/autoescola/pkg/events"
	"github.com/diagnosis/autoescola/pkg/logger"
)

const confirmationSubject = "Aula agendada com sucesso!"

type Notifier struct {
	mailer  mailer.Service
	timeout time.Duration
}

func New(m mailer.Service) *Notifier {
	return &Notifier{mailer: m, timeout: 15 * time.Second}
}

// HandleMessage is the lesson.booked subscription callback. Failures are
// logged; the event is not redelivered.
func (n *Notifier) HandleMessage(msg *events.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	var evt events.LessonBookedEvent
	if err := msg.Decode(&evt); err != nil {
		logger.ErrorContext(ctx, "Dropping malformed event", "error", err, "event_id", msg.ID)
		return
	}
	if err := n.LessonBooked(ctx, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to send lesson confirmation", "error", err, "event_id", msg.ID, "lesson_id", evt.LessonID)
	}
}

// LessonBooked emails the student a confirmation of the booked lesson.
func (n *Notifier) LessonBooked(ctx context.Context, evt events.LessonBookedEvent) error {
	if evt.StudentEmail == "" {
		logger.WarnContext(ctx, "Lesson booked without student email", "lesson_id", evt.LessonID)
		return nil
	}

	id, err := n.mailer.Send(ctx, ConfirmationMessage(evt))
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	logger.InfoContext(ctx, "Lesson confirmation sent", "lesson_id", evt.LessonID, "message_id", id)
	return nil
}

func ConfirmationMessage(evt events.LessonBookedEvent) mailer.Message {
	summary := wizard.Confirmation{Date: evt.Date, Time: evt.Time}.Message()

	text := summary + "\n"
	if evt.InstructorName != "" {
		text += "Instrutor: " + evt.InstructorName + "\n"
	}
	text += "Local: " + evt.Location + "\n"

	body := fmt.Sprintf(`<h2>%s</h2><p>%s</p><p>Local: %s</p>`,
		confirmationSubject, html.EscapeString(summary), html.EscapeString(evt.Location))
	if evt.InstructorName != "" {
		body += fmt.Sprintf(`<p>Instrutor: %s</p>`, html.EscapeString(evt.InstructorName))
	}

	return mailer.Message{
		ToEmail: evt.StudentEmail,
		ToName:  evt.StudentName,
		Subject: confirmationSubject,
		Text:    text,
		HTML:    body,
	}
}
