package participant

import (
	"context"
	"net/http"
	"strings"
)

type Notification struct {
	OrderID   int64  `json:"orderId"`
	UserID    int64  `json:"userId"`
	UserEmail string `json:"userEmail"`
	Message   string `json:"message"`
}

type NotificationClient struct{ c client }

func NewNotificationClient(opts Options) (*NotificationClient, error) {
	c, err := newClient("notification-service", opts)
	if err != nil {
		return nil, err
	}
	return &NotificationClient{c: c}, nil
}

// Send submits note and returns the free-text acknowledgment.
func (n *NotificationClient) Send(ctx context.Context, note Notification) (string, error) {
	var ack string
	if err := n.c.do(ctx, http.MethodPost, "/api/notifications/send", note, &ack); err != nil {
		return "", err
	}
	return strings.TrimSpace(ack), nil
}
