package backend

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by login and register.
type LoginResponse struct {
	Token    string `json:"token"`
	Type     string `json:"type,omitempty"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// User is returned by GET /auth/me.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Notification matches the backend notification payload, both over REST
// and on the /topic/notifications/{userId} destination.
type Notification struct {
	ID            int64   `json:"id"`
	Message       string  `json:"message"`
	IsRead        bool    `json:"isRead"`
	DocumentID    *int64  `json:"documentId"`
	DocumentTitle *string `json:"documentTitle"`
	CreatedAt     string  `json:"createdAt"`
}

// CountResponse is returned by GET /notifications/unread/count.
type CountResponse struct {
	Count int `json:"count"`
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}
