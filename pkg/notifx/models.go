package notifx

// EmailMessage is a single outbound email.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// FirstRecipient returns To[0] or "".
func (m EmailMessage) FirstRecipient() string {
	if len(m.To) == 0 {
		return ""
	}
	return m.To[0]
}
