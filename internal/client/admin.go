package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/service"
)

// SignUp creates an admin account and signs the client in.
func (c *Client) SignUp(ctx context.Context, in dto.SignUpRequest) (*dto.SessionResponse, error) {
	var out dto.SessionResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/auth/signup", body: in}, &out); err != nil {
		return nil, err
	}
	c.setSession(SessionSignedUp, out.Token, out.ExpiresAt)
	return &out, nil
}

// Login signs the client in.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.SessionResponse, error) {
	var out dto.SessionResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   dto.LoginRequest{Email: email, Password: password},
	}, &out)
	if err != nil {
		return nil, err
	}
	c.setSession(SessionSignedIn, out.Token, out.ExpiresAt)
	return &out, nil
}

// Logout revokes the session on the server and forgets it locally. The local
// session is dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	session := c.SessionToken()
	if session == "" {
		return nil
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/auth/logout", auth: true}, nil)
	c.dropSession(session, SessionSignedOut)
	if IsUnauthorized(err) {
		return nil
	}
	return err
}

// Profile returns the signed-in admin.
func (c *Client) Profile(ctx context.Context) (*model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/profile", auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile renames the signed-in admin.
func (c *Client) UpdateProfile(ctx context.Context, username string) (*model.Profile, error) {
	var out model.Profile
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/api/v1/profile",
		body:   dto.UpdateProfileRequest{Username: username},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword sets a new password. Other sessions are revoked.
func (c *Client) ChangePassword(ctx context.Context, password, confirm string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/api/v1/profile/password",
		body:   dto.ChangePasswordRequest{Password: password, ConfirmPassword: confirm},
		auth:   true,
	}, nil)
}

// DeleteAccount removes the admin with all boxes and signs the client out.
func (c *Client) DeleteAccount(ctx context.Context) error {
	session := c.SessionToken()
	if err := c.do(ctx, request{method: http.MethodDelete, path: "/api/v1/profile", auth: true}, nil); err != nil {
		return err
	}
	c.dropSession(session, SessionDeleted)
	return nil
}

func adminBoxPath(id string, rest string) string {
	return "/api/v1/admin/boxes/" + url.PathEscape(id) + rest
}

// Boxes lists the admin's boxes with their stats.
func (c *Client) Boxes(ctx context.Context) ([]dto.BoxResponse, error) {
	var out dto.List[dto.BoxResponse]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/admin/boxes", auth: true}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateBox creates a box. An empty Secret leaves it open.
func (c *Client) CreateBox(ctx context.Context, in dto.CreateBoxRequest) (*dto.BoxResponse, error) {
	var out dto.BoxResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/admin/boxes", body: in, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBox fetches one owned box.
func (c *Client) GetBox(ctx context.Context, id string) (*dto.BoxResponse, error) {
	var out dto.BoxResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: adminBoxPath(id, ""), auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBox applies the non-nil fields of in.
func (c *Client) UpdateBox(ctx context.Context, id string, in dto.UpdateBoxRequest) (*dto.BoxResponse, error) {
	var out dto.BoxResponse
	if err := c.do(ctx, request{method: http.MethodPatch, path: adminBoxPath(id, ""), body: in, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBox removes a box with its complaints and feedback.
func (c *Client) DeleteBox(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: adminBoxPath(id, ""), auth: true}, nil)
}

// ComplaintQuery filters an admin complaint listing. Zero values mean no
// search, every status and newest first.
type ComplaintQuery struct {
	Search string
	Status string
	Sort   string
}

func (q ComplaintQuery) values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}

// Complaints lists complaints in an owned box.
func (c *Client) Complaints(ctx context.Context, boxID string, q ComplaintQuery) ([]model.Complaint, error) {
	var out dto.List[model.Complaint]
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   adminBoxPath(boxID, "/complaints"),
		query:  q.values(),
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func adminComplaintPath(id, rest string) string {
	return "/api/v1/admin/complaints/" + url.PathEscape(id) + rest
}

// SetStatus moves a complaint to status.
func (c *Client) SetStatus(ctx context.Context, id string, status model.Status) (*model.Complaint, error) {
	var out model.Complaint
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   adminComplaintPath(id, "/status"),
		body:   dto.StatusRequest{Status: string(status)},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Reply sets the admin reply of a complaint.
func (c *Client) Reply(ctx context.Context, id, reply string) (*model.Complaint, error) {
	var out model.Complaint
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   adminComplaintPath(id, "/reply"),
		body:   dto.ReplyRequest{Reply: reply},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComplaint removes a complaint.
func (c *Client) DeleteComplaint(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: adminComplaintPath(id, ""), auth: true}, nil)
}

// BoxFeedback lists feedback for an owned box, newest first. A limit of 0
// uses the server default.
func (c *Client) BoxFeedback(ctx context.Context, boxID string, limit int) ([]model.Feedback, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out dto.List[model.Feedback]
	err := c.do(ctx, request{method: http.MethodGet, path: adminBoxPath(boxID, "/feedback"), query: q, auth: true}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Analytics summarizes an owned box over rangeName (week, month, quarter or
// year). An empty range uses the server default.
func (c *Client) Analytics(ctx context.Context, boxID, rangeName string) (*model.AnalyticsSummary, error) {
	var q url.Values
	if rangeName != "" {
		q = url.Values{"range": {rangeName}}
	}
	var out model.AnalyticsSummary
	err := c.do(ctx, request{method: http.MethodGet, path: adminBoxPath(boxID, "/analytics"), query: q, auth: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateWebhook registers an endpoint. The returned secret is shown once.
func (c *Client) CreateWebhook(ctx context.Context, in dto.CreateWebhookRequest) (*service.CreatedWebhook, error) {
	var out service.CreatedWebhook
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/admin/webhooks", body: in, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Webhooks lists the admin's webhook endpoints.
func (c *Client) Webhooks(ctx context.Context) ([]model.WebhookEndpoint, error) {
	var out dto.List[model.WebhookEndpoint]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/admin/webhooks", auth: true}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DeleteWebhook removes an endpoint.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/v1/admin/webhooks/" + url.PathEscape(id), auth: true}, nil)
}

// Deliveries lists recent delivery attempts for an endpoint.
func (c *Client) Deliveries(ctx context.Context, id string, limit int) ([]model.WebhookDelivery, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out dto.List[model.WebhookDelivery]
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/v1/admin/webhooks/" + url.PathEscape(id) + "/deliveries",
		query:  q,
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}
