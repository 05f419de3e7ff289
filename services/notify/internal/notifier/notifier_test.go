package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/diagnosis/autoescola/internal/platform/mailer"
	"github.com/diagnosis/autoescola/pkg/events"
)

type captureMailer struct {
	sent []mailer.Message
	err  error
}

func (c *captureMailer) Send(_ context.Context, msg mailer.Message) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.sent = append(c.sent, msg)
	return "msg-1", nil
}

func sampleEvent() events.LessonBookedEvent {
	return events.LessonBookedEvent{
		LessonID:       7,
		StudentEmail:   "aluno@example.com",
		StudentName:    "Aluno",
		InstructorName: "Carlos Mendes",
		Location:       "Centro - Av. Principal, 123",
		Date:           "2025-01-10",
		Time:           "14:00",
	}
}

func TestConfirmationMessage(t *testing.T) {
	msg := ConfirmationMessage(sampleEvent())

	if msg.Subject != "Aula agendada com sucesso!" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.HasPrefix(msg.Text, "Sua aula foi marcada para 2025-01-10 às 14:00") {
		t.Fatalf("unexpected text %q", msg.Text)
	}
	if !strings.Contains(msg.HTML, "Carlos Mendes") || msg.ToEmail != "aluno@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestHandleMessage_SendsEmail(t *testing.T) {
	m := &captureMailer{}
	n := New(m)

	data, _ := json.Marshal(sampleEvent())
	n.HandleMessage(&events.Message{Subject: events.LessonBooked, Data: data, ID: "e-1"})

	if len(m.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(m.sent))
	}
}

func TestHandleMessage_IgnoresMalformed(t *testing.T) {
	m := &captureMailer{}
	New(m).HandleMessage(&events.Message{Subject: events.LessonBooked, Data: []byte("{"), ID: "e-2"})

	if len(m.sent) != 0 {
		t.Fatal("malformed events must not be mailed")
	}
}

func TestLessonBooked_Errors(t *testing.T) {
	n := New(&captureMailer{err: errors.New("provider down")})
	if err := n.LessonBooked(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected send error")
	}

	evt := sampleEvent()
	evt.StudentEmail = ""
	if err := n.LessonBooked(context.Background(), evt); err != nil {
		t.Fatalf("missing email should be skipped, got %v", err)
	}
}
