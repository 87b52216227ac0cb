package todoist

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mizuki-commits/dashboard-template/domain"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Todoist-Hmac-SHA256"

// HandledEvents are the webhook events turned into queued events.
var HandledEvents = []string{domain.EventItemCompleted, domain.EventItemUpdated, domain.EventItemDeleted}

// VerifySignature checks signature against the HMAC-SHA256 of body keyed by
// secret. Hex and base64 encodings are accepted; comparison is constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if got, err := hex.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	if got, err := base64.StdEncoding.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	return false
}

// Sign returns the hex signature for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type WebhookPayload struct {
	EventName string    `json:"event_name"`
	UserID    string    `json:"user_id"`
	EventData EventData `json:"event_data"`
}

type EventData struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Content     string `json:"content"`
	Description string `json:"description"`
	IsCompleted bool   `json:"is_completed"`
	Checked     bool   `json:"checked"`
	Due         *Due   `json:"due"`
}

// Event converts the delivery into a queued event for userID. The second
// result is false for events the dashboard does not act on.
func (p WebhookPayload) Event(userID string, now time.Time) (domain.TodoistEvent, bool) {
	if p.EventData.ID == "" {
		return domain.TodoistEvent{}, false
	}
	completed := p.EventData.IsCompleted || p.EventData.Checked
	switch p.EventName {
	case domain.EventItemCompleted:
		if !completed {
			return domain.TodoistEvent{}, false
		}
	case domain.EventItemUpdated, domain.EventItemDeleted:
	default:
		return domain.TodoistEvent{}, false
	}
	ev := domain.TodoistEvent{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventName:   p.EventName,
		TaskID:      p.EventData.ID,
		Completed:   completed,
		Content:     p.EventData.Content,
		Description: p.EventData.Description,
		ReceivedAt:  now.UnixMilli(),
	}
	if p.EventData.Due != nil {
		ev.Due = p.EventData.Due.Date
	}
	return ev, true
}
