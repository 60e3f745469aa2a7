package mailroute

import (
	"regexp"
	"testing"
)

func inspect(t *testing.T, raw string) View {
	t.Helper()
	view, err := JSONInspector().Inspect([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return view
}

func TestDiscriminators(t *testing.T) {
	view := inspect(t, `{
		"Type": "Notification",
		"TopicArn": "arn:aws:sns:us-east-1:123456789012:inbound-mail",
		"Message": "{\"notificationType\": \"Received\"}",
		"count": 42
	}`)

	tests := []struct {
		name string
		d    Discriminator
		want bool
	}{
		{"HasFields all present", HasFields("Type", "Message"), true},
		{"HasFields one missing", HasFields("Type", "missing"), false},
		{"HasFields empty is vacuously true", HasFields(), true},
		{"FieldEquals exact", FieldEquals("Type", "Notification"), true},
		{"FieldEquals wrong value", FieldEquals("Type", "SubscriptionConfirmation"), false},
		{"FieldEquals non-string", FieldEquals("count", "42"), false},
		{"FieldMatches", FieldMatches("TopicArn", regexp.MustCompile(`:inbound-mail$`)), true},
		{"FieldMatches no match", FieldMatches("TopicArn", regexp.MustCompile(`:outbound$`)), false},
		{"FieldMatches missing", FieldMatches("missing", regexp.MustCompile(`.*`)), false},
		{"Within embedded document", Within("Message", FieldEquals("notificationType", "Received")), true},
		{"Within wrong value", Within("Message", FieldEquals("notificationType", "Bounce")), false},
		{"Within non-document", Within("Type", HasFields("x")), false},
		{"Within missing", Within("missing", And()), false},
		{"And all match", And(HasFields("Type"), FieldEquals("Type", "Notification")), true},
		{"And one fails", And(HasFields("Type"), FieldEquals("Type", "Other")), false},
		{"And empty is vacuously true", And(), true},
		{"Or one matches", Or(HasFields("missing"), HasFields("Type")), true},
		{"Or none match", Or(HasFields("missing"), FieldEquals("Type", "Other")), false},
		{"Or empty is false", Or(), false},
		{"Not inverts", Not(HasFields("missing")), true},
		{"DiscriminatorFunc", DiscriminatorFunc(func(v View) bool { return v.HasField("count") }), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Match(view); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
