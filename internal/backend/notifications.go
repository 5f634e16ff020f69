package backend

import (
	"context"
	"net/http"
	"strconv"
)

// ListNotifications calls GET /notifications (newest first).
func (c *Client) ListNotifications(ctx context.Context, token string) ([]Notification, error) {
	var out []Notification
	if err := c.call(ctx, "ListNotifications", http.MethodGet, "/notifications", token, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

// UnreadCount calls GET /notifications/unread/count.
func (c *Client) UnreadCount(ctx context.Context, token string) (int, error) {
	var out CountResponse
	if err := c.call(ctx, "UnreadCount", http.MethodGet, "/notifications/unread/count", token, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// MarkRead calls PUT /notifications/{id}/read.
func (c *Client) MarkRead(ctx context.Context, token string, id int64) error {
	return c.call(ctx, "MarkRead", http.MethodPut, "/notifications/"+strconv.FormatInt(id, 10)+"/read", token, struct{}{}, nil)
}

// MarkAllRead calls PUT /notifications/read-all.
func (c *Client) MarkAllRead(ctx context.Context, token string) error {
	return c.call(ctx, "MarkAllRead", http.MethodPut, "/notifications/read-all", token, struct{}{}, nil)
}

// DeleteNotification calls DELETE /notifications/{id}.
func (c *Client) DeleteNotification(ctx context.Context, token string, id int64) error {
	return c.call(ctx, "DeleteNotification", http.MethodDelete, "/notifications/"+strconv.FormatInt(id, 10), token, nil, nil)
}

// ClearNotifications calls DELETE /notifications/all.
func (c *Client) ClearNotifications(ctx context.Context, token string) error {
	return c.call(ctx, "ClearNotifications", http.MethodDelete, "/notifications/all", token, nil, nil)
}
