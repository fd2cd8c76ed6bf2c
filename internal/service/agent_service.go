package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/llm"
	"github.com/cozycabin/cozycabin/internal/ratelimit"
	"github.com/cozycabin/cozycabin/internal/repository"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

const agentSystemPrompt = `You are the CozyCabin support assistant for administrators.
Help with ticket triage, agent workload and customer communication.
Answer concisely in Markdown. If you do not know something about the
ticket data, say so instead of guessing.`

// maxAgentHistory bounds how many earlier turns are forwarded to the model.
const maxAgentHistory = 20

// summaryListLimit bounds how many tickets a direct query lists.
const summaryListLimit = 10

// MarkdownRenderer turns assistant Markdown into safe HTML.
type MarkdownRenderer interface {
	MarkdownToHTML(markdown string) (string, error)
}

// AgentReply is the admin assistant's answer.
type AgentReply struct {
	Reply     string `json:"reply"`
	ReplyHTML string `json:"reply_html,omitempty"`
	Intent    string `json:"-"`
}

// AgentService answers admin console messages, either directly from
// ticket data or through the language model.
type AgentService struct {
	tickets  repository.TicketRepository
	stats    *StatsService
	provider llm.Provider
	renderer MarkdownRenderer
	limiter  ratelimit.Limiter
	limits   ratelimit.Limits
	logger   *zap.Logger
	timeout  time.Duration
}

// AgentDependencies bundles collaborators for agent service.
type AgentDependencies struct {
	TicketRepo repository.TicketRepository
	Stats      *StatsService
	Provider   llm.Provider
	Renderer   MarkdownRenderer
	Limiter    ratelimit.Limiter
	Limits     ratelimit.Limits
	Logger     *zap.Logger
	Timeout    time.Duration
}

// NewAgentService constructs the service.
func NewAgentService(deps AgentDependencies) *AgentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentService{
		tickets:  deps.TicketRepo,
		stats:    deps.Stats,
		provider: deps.Provider,
		renderer: deps.Renderer,
		limiter:  deps.Limiter,
		limits:   deps.Limits,
		logger:   logger,
		timeout:  deps.Timeout,
	}
}

// Chat answers newMessage given the earlier conversation.
func (s *AgentService) Chat(ctx context.Context, actor *domain.Profile, history []domain.ChatMessage, newMessage string) (*AgentReply, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	newMessage = strings.TrimSpace(newMessage)
	if newMessage == "" {
		return nil, apperrors.NewValidationError("newUserMessage is required", map[string]any{"field": "newUserMessage"})
	}
	if err := s.checkRate(ctx, actor); err != nil {
		return nil, err
	}

	reply, err := s.answerIntent(ctx, actor, newMessage)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		reply, err = s.askModel(ctx, history, newMessage)
		if err != nil {
			return nil, err
		}
	}
	if s.renderer != nil {
		html, err := s.renderer.MarkdownToHTML(reply.Reply)
		if err != nil {
			s.logger.Warn("render assistant reply", zap.Error(err))
		} else {
			reply.ReplyHTML = html
		}
	}
	s.logger.Info("admin agent replied",
		zap.String("actor_id", actor.ID),
		zap.String("intent", reply.Intent))
	return reply, nil
}

func (s *AgentService) checkRate(ctx context.Context, actor *domain.Profile) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, "agent:"+actor.ID, s.limits)
	if err != nil {
		// limiter outages must not lock admins out
		s.logger.Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !allowed {
		return apperrors.NewRateLimited("too many assistant requests, try again later")
	}
	return nil
}

// detectIntent maps a message to a direct query, or "" for the model.
func detectIntent(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "unassigned tickets"):
		return "unassigned_tickets"
	case strings.Contains(lower, "urgent tickets"):
		return "urgent_tickets"
	case strings.Contains(lower, "my stats"), strings.Contains(lower, "performance"):
		return "agent_stats"
	}
	return ""
}

func (s *AgentService) answerIntent(ctx context.Context, actor *domain.Profile, message string) (*AgentReply, error) {
	intent := detectIntent(message)
	switch intent {
	case "unassigned_tickets":
		tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
			Unassigned:      true,
			ExcludeStatuses: []domain.TicketStatus{domain.TicketStatusClosed},
			Limit:           summaryListLimit,
		})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		return &AgentReply{Reply: summarizeTickets("unassigned open tickets", tickets), Intent: intent}, nil
	case "urgent_tickets":
		tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
			Priorities:      []domain.TicketPriority{domain.TicketPriorityUrgent},
			ExcludeStatuses: []domain.TicketStatus{domain.TicketStatusSolved, domain.TicketStatusClosed},
			Limit:           summaryListLimit,
		})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		return &AgentReply{Reply: summarizeTickets("urgent tickets needing work", tickets), Intent: intent}, nil
	case "agent_stats":
		if s.stats == nil {
			return nil, nil
		}
		stats, err := s.stats.AgentPerformance(ctx, actor)
		if err != nil {
			return nil, err
		}
		return &AgentReply{Reply: summarizeStats(stats), Intent: intent}, nil
	}
	return nil, nil
}

func (s *AgentService) askModel(ctx context.Context, history []domain.ChatMessage, message string) (*AgentReply, error) {
	if s.provider == nil {
		return nil, apperrors.NewUpstreamError("assistant is not configured", nil)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	messages := conversation(history)
	messages = append(messages, domain.ChatMessage{Role: domain.ChatRoleUser, Content: message})
	resp, err := s.provider.Complete(ctx, llm.Request{
		System:   agentSystemPrompt,
		Messages: messages,
	})
	if err != nil {
		s.logger.Error("assistant completion failed", zap.Error(err))
		return nil, apperrors.NewUpstreamError("assistant request failed", err)
	}
	s.logger.Debug("assistant completion",
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens))
	return &AgentReply{Reply: resp.Content, Intent: "model"}, nil
}

// conversation keeps the most recent user and assistant turns. Client
// supplied system turns are dropped.
func conversation(history []domain.ChatMessage) []domain.ChatMessage {
	kept := make([]domain.ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role != domain.ChatRoleUser && msg.Role != domain.ChatRoleAssistant {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		kept = append(kept, msg)
	}
	if len(kept) > maxAgentHistory {
		kept = kept[len(kept)-maxAgentHistory:]
	}
	return kept
}

func summarizeTickets(label string, tickets []domain.Ticket) string {
	if len(tickets) == 0 {
		return fmt.Sprintf("There are no %s right now.", label)
	}
	var b strings.Builder
	if len(tickets) >= summaryListLimit {
		fmt.Fprintf(&b, "Here are the %d most recent %s:\n\n", len(tickets), label)
	} else {
		fmt.Fprintf(&b, "There are %d %s:\n\n", len(tickets), label)
	}
	for _, ticket := range tickets {
		fmt.Fprintf(&b, "- **%s** (%s, %s), opened %s\n",
			ticket.Subject, ticket.Priority, ticket.Status, ticket.CreatedAt.UTC().Format("Jan 2 15:04 MST"))
	}
	return b.String()
}

func summarizeStats(stats *domain.AgentPerformanceStats) string {
	return fmt.Sprintf("Your current performance:\n\n"+
		"- Assigned open tickets: %d\n"+
		"- Resolved today: %d\n"+
		"- Average first response: %.1f hours\n"+
		"- Satisfaction rate: %.0f%%\n",
		stats.AssignedTickets, stats.ResolvedToday, stats.AverageResponseTime, stats.SatisfactionRate)
}
