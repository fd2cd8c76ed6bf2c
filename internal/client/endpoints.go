package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/domain"
)

// TicketQuery filters GET /tickets. Assignee is a profile id or "unassigned".
type TicketQuery struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Assignee   string
	Search     string
	Page       int
	PageSize   int
}

func (q TicketQuery) values() url.Values {
	values := url.Values{}
	if len(q.Statuses) > 0 {
		parts := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			parts[i] = string(s)
		}
		values.Set("status", strings.Join(parts, ","))
	}
	if len(q.Priorities) > 0 {
		parts := make([]string, len(q.Priorities))
		for i, p := range q.Priorities {
			parts[i] = string(p)
		}
		values.Set("priority", strings.Join(parts, ","))
	}
	if q.Assignee != "" {
		values.Set("assignee", q.Assignee)
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return values
}

// TicketDetail is a ticket with its visible thread and attachments.
type TicketDetail struct {
	Ticket      *domain.Ticket      `json:"ticket"`
	Comments    []domain.Comment    `json:"comments"`
	Attachments []domain.Attachment `json:"attachments"`
}

// File is an attachment to upload.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

func fileHeader(file File) textproto.MIMEHeader {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		mime.FormatMediaType("form-data", map[string]string{"name": "file", "filename": file.Name}))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	return header
}

// SignUp POST /auth/signup.
func (c *Client) SignUp(ctx context.Context, req dto.SignUpRequest) (*domain.Session, error) {
	var session domain.Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignIn POST /auth/signin.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var session domain.Session
	req := dto.SignInRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/signin", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Me GET /auth/me.
func (c *Client) Me(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateMe PATCH /profiles/me.
func (c *Client) UpdateMe(ctx context.Context, req dto.UpdateProfileRequest) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.doJSON(ctx, http.MethodPatch, "/profiles/me", req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile PATCH /profiles/:id.
func (c *Client) UpdateProfile(ctx context.Context, id string, req dto.AdminUpdateProfileRequest) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.doJSON(ctx, http.MethodPatch, "/profiles/"+url.PathEscape(id), req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// TicketPage is one page of GET /tickets.
type TicketPage struct {
	Tickets  []domain.Ticket
	Page     int
	PageSize int
	HasMore  bool
}

type pageMeta struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// ListTickets GET /tickets.
func (c *Client) ListTickets(ctx context.Context, query TicketQuery) (*TicketPage, error) {
	path := "/tickets"
	if encoded := query.values().Encode(); encoded != "" {
		path += "?" + encoded
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	respBody, err := c.send(req)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []domain.Ticket `json:"data"`
		Meta *pageMeta       `json:"meta"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	page := &TicketPage{Tickets: resp.Data, Page: max(query.Page, 1), PageSize: query.PageSize}
	if resp.Meta != nil {
		page.Page = resp.Meta.Page
		page.PageSize = resp.Meta.PageSize
		page.HasMore = resp.Meta.HasMore
	}
	return page, nil
}

// CreateTicket POST /tickets.
func (c *Client) CreateTicket(ctx context.Context, req dto.CreateTicketRequest) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := c.doJSON(ctx, http.MethodPost, "/tickets", req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicket GET /tickets/:id.
func (c *Client) GetTicket(ctx context.Context, id string) (*TicketDetail, error) {
	var detail TicketDetail
	if err := c.doJSON(ctx, http.MethodGet, "/tickets/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateTicket PATCH /tickets/:id.
func (c *Client) UpdateTicket(ctx context.Context, id string, req dto.UpdateTicketRequest) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := c.doJSON(ctx, http.MethodPatch, "/tickets/"+url.PathEscape(id), req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// AssignToSelf POST /tickets/:id/assign-self.
func (c *Client) AssignToSelf(ctx context.Context, id string, expectedAssignee *string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	req := dto.AssignSelfRequest{ExpectedAssignee: expectedAssignee}
	if err := c.doJSON(ctx, http.MethodPost, "/tickets/"+url.PathEscape(id)+"/assign-self", req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// DeleteTicket DELETE /tickets/:id.
func (c *Client) DeleteTicket(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/tickets/"+url.PathEscape(id), nil, nil)
}

// AddComment POST /tickets/:id/comments.
func (c *Client) AddComment(ctx context.Context, ticketID string, req dto.CreateCommentRequest) (*domain.Comment, error) {
	var comment domain.Comment
	if err := c.doJSON(ctx, http.MethodPost, "/tickets/"+url.PathEscape(ticketID)+"/comments", req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// EditComment PATCH /comments/:id.
func (c *Client) EditComment(ctx context.Context, id, content string) (*domain.Comment, error) {
	var comment domain.Comment
	req := dto.UpdateCommentRequest{Content: content}
	if err := c.doJSON(ctx, http.MethodPatch, "/comments/"+url.PathEscape(id), req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// UploadAttachment POST /tickets/:id/attachments as multipart form data.
func (c *Client) UploadAttachment(ctx context.Context, ticketID string, file File, commentID *string) (*domain.Attachment, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if commentID != nil {
		if err := form.WriteField("comment_id", *commentID); err != nil {
			return nil, fmt.Errorf("write comment_id: %w", err)
		}
	}
	part, err := form.CreatePart(fileHeader(file))
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/tickets/"+url.PathEscape(ticketID)+"/attachments", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	respBody, err := c.send(req)
	if err != nil {
		return nil, err
	}
	var attachment domain.Attachment
	if err := decodeData(respBody, &attachment); err != nil {
		return nil, err
	}
	return &attachment, nil
}

// DownloadAttachment GET /attachments/:id/download. The caller closes the body.
func (c *Client) DownloadAttachment(ctx context.Context, id string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/attachments/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return resp.Body, nil
}

// DeleteAttachment DELETE /attachments/:id.
func (c *Client) DeleteAttachment(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/attachments/"+url.PathEscape(id), nil, nil)
}

// ListInvites GET /invites.
func (c *Client) ListInvites(ctx context.Context) ([]domain.Invite, error) {
	var invites []domain.Invite
	if err := c.doJSON(ctx, http.MethodGet, "/invites", nil, &invites); err != nil {
		return nil, err
	}
	return invites, nil
}

// VerifyInvite GET /invites/verify.
func (c *Client) VerifyInvite(ctx context.Context, token string) (*domain.InviteVerification, error) {
	var verification domain.InviteVerification
	path := "/invites/verify?" + url.Values{"token": {token}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &verification); err != nil {
		return nil, err
	}
	return &verification, nil
}

// SendInvite POST /handle-invite and returns the confirmation message.
func (c *Client) SendInvite(ctx context.Context, email string, role domain.Role) (string, error) {
	var resp dto.MessageResponse
	if err := c.doRaw(ctx, http.MethodPost, "/handle-invite", dto.InviteRequest{Email: email, Role: role}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// AdminAgent POST /adminAgent.
func (c *Client) AdminAgent(ctx context.Context, history []domain.ChatMessage, newMessage string) (*dto.AdminAgentResponse, error) {
	var resp dto.AdminAgentResponse
	req := dto.AdminAgentRequest{Messages: history, NewUserMessage: newMessage}
	if err := c.doRaw(ctx, http.MethodPost, "/adminAgent", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return &resp, nil
}

// MyStats GET /agents/me/stats.
func (c *Client) MyStats(ctx context.Context) (*domain.AgentPerformanceStats, error) {
	var stats domain.AgentPerformanceStats
	if err := c.doJSON(ctx, http.MethodGet, "/agents/me/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
