package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/tellus/tellus/internal/category"
	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/ledger"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/service"
)

func boxPath(token string, rest ...string) string {
	return "/api/v1/boxes/" + url.PathEscape(token) + strings.Join(rest, "")
}

// Categories lists the box categories in display order.
func (c *Client) Categories(ctx context.Context) ([]category.Category, error) {
	var out dto.List[category.Category]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/categories"}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Box fetches the visitor view of a box. Locked is set when the box needs a
// secret and no valid grant is stored.
func (c *Client) Box(ctx context.Context, token string) (*service.BoxView, error) {
	var view service.BoxView
	err := c.do(ctx, request{method: http.MethodGet, path: boxPath(token), grantFor: token}, &view)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.boxIDs[token] = view.ID
	c.mu.Unlock()
	return &view, nil
}

// Unlock exchanges a box secret for an access grant and stores it.
func (c *Client) Unlock(ctx context.Context, token, secret string) (*gate.Grant, error) {
	var grant gate.Grant
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   boxPath(token, "/unlock"),
		body:   dto.UnlockRequest{Secret: secret},
	}, &grant)
	if err != nil {
		return nil, err
	}

	c.SetGrant(token, grant.Token)
	c.mu.Lock()
	c.boxIDs[token] = grant.BoxID
	c.mu.Unlock()
	return &grant, nil
}

// Attachment is an optional file sent with a complaint.
type Attachment struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Complaint is a new complaint submission.
type Complaint struct {
	Title          string
	Message        string
	Category       string
	CustomCategory string
	Attachment     *Attachment
}

// Submit files a complaint in a box and records its tracking token in the
// ledger, if one is configured. A ledger write failure is returned together
// with the receipt, since the complaint itself was accepted.
func (c *Client) Submit(ctx context.Context, token string, in Complaint) (*dto.SubmittedComplaintResponse, error) {
	req := request{method: http.MethodPost, path: boxPath(token, "/complaints"), grantFor: token}
	if in.Attachment == nil {
		req.body = dto.SubmitComplaintRequest{
			Title:          in.Title,
			Message:        in.Message,
			Category:       in.Category,
			CustomCategory: in.CustomCategory,
		}
	} else {
		body, contentType, err := multipartComplaint(in)
		if err != nil {
			return nil, err
		}
		req.raw = body
		req.contentType = contentType
	}

	var receipt dto.SubmittedComplaintResponse
	if err := c.do(ctx, req, &receipt); err != nil {
		return nil, err
	}

	if c.ledger != nil {
		if err := c.record(ctx, token, receipt.TrackingToken); err != nil {
			return &receipt, err
		}
	}
	return &receipt, nil
}

func (c *Client) record(ctx context.Context, token, trackingToken string) error {
	boxID, err := c.boxID(ctx, token)
	if err != nil {
		return fmt.Errorf("resolve box for ledger: %w", err)
	}
	if err := c.ledger.Record(ctx, boxID, trackingToken); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

func (c *Client) boxID(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	id, ok := c.boxIDs[token]
	c.mu.Unlock()
	if ok && id != "" {
		return id, nil
	}

	view, err := c.Box(ctx, token)
	if err != nil {
		return "", err
	}
	return view.ID, nil
}

func multipartComplaint(in Complaint) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"title", in.Title},
		{"message", in.Message},
		{"category", in.Category},
		{"custom_category", in.CustomCategory},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	contentType := in.Attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename=%q`, in.Attachment.Name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := io.Copy(part, in.Attachment.Body); err != nil {
		return nil, "", fmt.Errorf("copy attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// Mine lists the complaints this device submitted to a box, as recorded in
// the ledger. Without a ledger, or with no entries, it returns an empty list
// without calling the server.
func (c *Client) Mine(ctx context.Context, token string) ([]dto.TrackedComplaint, error) {
	if c.ledger == nil {
		return []dto.TrackedComplaint{}, nil
	}

	boxID, err := c.boxID(ctx, token)
	if err != nil {
		return nil, err
	}
	entries, err := c.ledger.ListForBox(ctx, boxID)
	if err != nil {
		return nil, err
	}
	return c.MineByTokens(ctx, token, ledger.Tokens(entries))
}

// MineByTokens looks up complaints in a box by tracking token. Tokens that
// are unknown or belong to another box are left out.
func (c *Client) MineByTokens(ctx context.Context, token string, trackingTokens []string) ([]dto.TrackedComplaint, error) {
	if len(trackingTokens) == 0 {
		return []dto.TrackedComplaint{}, nil
	}

	var out dto.List[dto.TrackedComplaint]
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     boxPath(token, "/complaints"),
		query:    url.Values{"tokens": {strings.Join(trackingTokens, ",")}},
		grantFor: token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Track looks up one complaint by tracking token.
func (c *Client) Track(ctx context.Context, trackingToken string) (*dto.TrackedComplaint, error) {
	var out dto.TrackedComplaint
	path := "/api/v1/track/" + url.PathEscape(strings.TrimSpace(trackingToken))
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFeedback rates a box from 1 to 5 with an optional message.
func (c *Client) SubmitFeedback(ctx context.Context, token string, rating int, message string) (*model.Feedback, error) {
	var out model.Feedback
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     boxPath(token, "/feedback"),
		body:     dto.FeedbackRequest{Rating: rating, Message: message},
		grantFor: token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Feedback lists recent feedback for a box.
func (c *Client) Feedback(ctx context.Context, token string) ([]model.Feedback, error) {
	var out dto.List[model.Feedback]
	err := c.do(ctx, request{method: http.MethodGet, path: boxPath(token, "/feedback"), grantFor: token}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}
