package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "ops@example.com"}, nil); sender != nil {
		t.Fatal("expected nil sender when API key is empty")
	}
}

func TestSendGridMessageFallsBackToTextBody(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "ops@example.com"}, nil)
	if sender.fromName != defaultFromName {
		t.Fatalf("from name = %q", sender.fromName)
	}
	m := sender.message(EmailMessage{To: "p@example.com", Subject: "Hi", Body: "plain"})
	if len(m.Content) != 2 || m.Content[1].Value != "plain" {
		t.Fatalf("unexpected content %+v", m.Content)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderBuildsInput(t *testing.T) {
	api := &fakeSES{}
	sender := newSESSender(api, SESConfig{FromEmail: "ops@example.com"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "p@example.com", Subject: "Hi", Body: "plain", HTML: "<p>hi</p>"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Same Day <ops@example.com>" {
		t.Fatalf("from = %q", got)
	}
	if api.input.Destination.ToAddresses[0] != "p@example.com" {
		t.Fatalf("to = %v", api.input.Destination.ToAddresses)
	}
	if aws.ToString(api.input.Content.Simple.Body.Html.Data) != "<p>hi</p>" {
		t.Fatal("html body missing")
	}
}

func TestSESSenderWrapsErrors(t *testing.T) {
	sender := newSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "p@example.com"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNotifyServicePendingApproval(t *testing.T) {
	stub := NewStubEmailSender(nil)
	svc := NewService(stub, nil)
	err := svc.NotifyServicePendingApproval(context.Background(), PendingService{
		ProviderID:      "prov-1",
		ProviderName:    "Glow Studio",
		ProviderEmail:   "owner@glow.example",
		ServiceName:     "Brow <Lamination>",
		Platform:        "square",
		Price:           80,
		DurationMinutes: 45,
	})
	if err != nil {
		t.Fatalf("NotifyServicePendingApproval: %v", err)
	}
	sent := stub.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if sent[0].To != "owner@glow.example" {
		t.Fatalf("to = %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "$80.00") || !strings.Contains(sent[0].Body, "Square") {
		t.Fatalf("unexpected body %q", sent[0].Body)
	}
	if !strings.Contains(sent[0].HTML, "Brow &lt;Lamination&gt;") {
		t.Fatalf("html not escaped: %q", sent[0].HTML)
	}
}

func TestNotifyServicePendingApprovalRequiresEmail(t *testing.T) {
	svc := NewService(NewStubEmailSender(nil), nil)
	if err := svc.NotifyServicePendingApproval(context.Background(), PendingService{ProviderID: "prov-1"}); err == nil {
		t.Fatal("expected error for missing provider email")
	}
}
