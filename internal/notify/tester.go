package notify

import "context"

// Tester sends throwaway messages through the real channels so operators can
// verify SMTP and chat credentials without placing an order
type Tester struct {
	Email *EmailSender
	Chat  *ChatSender
}

func (t *Tester) TestEmail(ctx context.Context, to string) error {
	return t.Email.Send(ctx, to, "Little Kobe notification test",
		"<p>This is a test email from the Little Kobe storefront.</p>")
}

func (t *Tester) TestChat(ctx context.Context, to string) error {
	return t.Chat.Send(ctx, to, "This is a test message from the Little Kobe storefront.")
}
