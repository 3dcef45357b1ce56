package notifxses

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/notifx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, f.err
}

func TestSESProvider_BuildsInput(t *testing.T) {
	api := &fakeSES{}
	p := NewSESProvider(api, "noreply@x.com")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{
		To:       []string{"alice@x.com"},
		Subject:  "Password Reset",
		HTMLBody: "<p>hi</p>",
	}, notifx.WithTags(map[string]string{"kind": "reset"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if aws.ToString(api.input.Source) != "noreply@x.com" {
		t.Fatalf("expected default from, got %q", aws.ToString(api.input.Source))
	}
	if aws.ToString(api.input.Message.Body.Html.Data) != "<p>hi</p>" || api.input.Message.Body.Text != nil {
		t.Fatal("expected html-only body")
	}
	if len(api.input.Tags) != 1 || aws.ToString(api.input.Tags[0].Value) != "reset" {
		t.Fatalf("expected kind tag, got %+v", api.input.Tags)
	}
}

func TestSESProvider_WrapsErrors(t *testing.T) {
	p := NewSESProvider(&fakeSES{err: errors.New("throttled")}, "noreply@x.com")
	err := p.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@x.com"}, Subject: "s"})
	if !errx.IsCode(err, ErrSendFailed) {
		t.Fatalf("expected SES send failure code, got %v", err)
	}
}
