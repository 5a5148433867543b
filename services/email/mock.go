package emailsvc

import (
	"sync"

	"github.com/freetutor/freetutor/core"
)

// MockService records rendered messages synchronously so tests can assert on
// them.
type MockService struct {
	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*MockService)(nil)

func NewMockService() *MockService {
	return &MockService{sent: make([]core.EmailMessage, 0)}
}

func (svc *MockService) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, msg := range messages {
		if err := msg.Render(); err != nil {
			continue
		}
		if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
			svc.sent = append(svc.sent, *msg)
		}
	}
}

// Sent returns a copy of the recorded messages.
func (svc *MockService) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]core.EmailMessage, len(svc.sent))
	copy(out, svc.sent)
	return out
}

// Reset clears the recorded messages.
func (svc *MockService) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = svc.sent[:0]
}
