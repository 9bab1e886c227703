package survey

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"comanda/internal/adapters/chat"
	"comanda/internal/repository/memory"
	"comanda/pkg/logger"
	"comanda/pkg/templates"
)

// Service handles satisfaction-survey responses. Surveys are opened by
// the external follow-up pipeline some time after delivery; this side
// only needs to know who has an open survey and to consume one rating.
type Service struct {
	mu        sync.Mutex
	open      map[string]time.Time
	sender    chat.Sender
	templates *templates.Registry
	clock     memory.Clock
	log       *logger.Logger
}

// NewService creates the survey response service
func NewService(sender chat.Sender, tmpl *templates.Registry, clock memory.Clock, log *logger.Logger) *Service {
	if tmpl == nil {
		tmpl = templates.Get()
	}
	if clock == nil {
		clock = memory.SystemClock()
	}
	return &Service{
		open:      make(map[string]time.Time),
		sender:    sender,
		templates: tmpl,
		clock:     clock,
		log:       log.With("component", "survey_service"),
	}
}

// Open marks a survey session for the party and sends the rating
// prompt. Reopening just refreshes the window.
func (s *Service) Open(ctx context.Context, id string) error {
	s.mu.Lock()
	s.open[id] = s.clock.Now()
	s.mu.Unlock()

	msg, err := s.templates.Render("chat/survey_prompt", nil)
	if err != nil {
		return err
	}
	return s.sender.SendMessage(ctx, id, msg)
}

// HasOpenSurvey reports whether the party has an unanswered survey
func (s *Service) HasOpenSurvey(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.open[id]
	return ok
}

// HandleResponse consumes one survey answer. A rating of 1-5, with an
// optional trailing comment, closes the survey; anything else
// re-prompts and keeps it open.
func (s *Service) HandleResponse(ctx context.Context, id string, text string) error {
	fields := strings.Fields(text)

	var rating int
	var err error
	if len(fields) == 0 {
		err = strconv.ErrSyntax
	} else {
		rating, err = strconv.Atoi(fields[0])
	}

	if err != nil || rating < 1 || rating > 5 {
		msg, renderErr := s.templates.Render("chat/survey_invalid", nil)
		if renderErr != nil {
			return renderErr
		}
		return s.sender.SendMessage(ctx, id, msg)
	}

	s.mu.Lock()
	delete(s.open, id)
	s.mu.Unlock()

	comment := strings.TrimSpace(strings.Join(fields[1:], " "))
	s.log.Infow("Survey response recorded", "sender_id", id, "rating", rating, "comment", comment)

	msg, err := s.templates.Render("chat/survey_thanks", nil)
	if err != nil {
		return err
	}
	return s.sender.SendMessage(ctx, id, msg)
}

// Expire drops surveys older than ttl, returning how many were closed.
// Rides the same background sweep as session eviction.
func (s *Service) Expire(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-ttl)
	expired := 0
	for id, openedAt := range s.open {
		if openedAt.Before(cutoff) {
			delete(s.open, id)
			expired++
		}
	}
	return expired
}
