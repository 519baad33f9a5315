package notification

import (
	"bytes"
	"html/template"
	"sort"

	"github.com/bizbook/backend/internal/domain/notification"
)

var bodyTemplate = template.Must(template.New("body").Parse(`<p>Hello {{.Name}},</p>
<p>{{.Lead}}</p>
{{- if .Fields}}
<table>
{{- range .Fields}}
<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- end}}
<p>BizBook</p>
`))

type field struct{ Key, Value string }

type bodyData struct {
	Name   string
	Lead   string
	Fields []field
}

func lead(k notification.Kind) string {
	switch k {
	case notification.KindTrialExpiring:
		return "Your free trial is about to end. Choose a plan to keep recording sales and expenses."
	case notification.KindTrialExpired:
		return "Your free trial has ended. Your data is safe and read-only until you subscribe."
	case notification.KindSubscriptionExpired:
		return "Your subscription period has ended. Renew to continue making changes."
	case notification.KindSubscriptionActivated:
		return "Thank you for your payment. Your subscription is now active."
	case notification.KindPaymentFailed:
		return "We could not complete your mobile wallet payment. No money was taken."
	case notification.KindOfflineSubmitted:
		return "We received your bank transfer proof. An administrator will review it shortly."
	case notification.KindOfflineApproved:
		return "Your bank transfer was approved and your subscription is active."
	case notification.KindOfflineRejected:
		return "Your bank transfer could not be verified."
	}
	return ""
}

// RenderHTML renders the email body for a message
func RenderHTML(to notification.Recipient, msg notification.Message) (string, error) {
	data := bodyData{Name: to.Name, Lead: lead(msg.Kind)}
	for k, v := range msg.Payload {
		data.Fields = append(data.Fields, field{Key: k, Value: v})
	}
	sort.Slice(data.Fields, func(i, j int) bool { return data.Fields[i].Key < data.Fields[j].Key })

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
