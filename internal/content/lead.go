package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Lead is a contact form submission.
type Lead struct {
	pg.Model
	Name    string  `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Subject *string `json:"subject"`
	Message *string `json:"message"`
}

// Validate blanks empty optional fields and requires a way to answer.
func (l *Lead) Validate() error {
	l.Name = strings.TrimSpace(l.Name)
	l.Email = trimmed(l.Email)
	if l.Email != nil {
		lower := strings.ToLower(*l.Email)
		l.Email = &lower
	}
	l.Phone = trimmed(l.Phone)
	l.Subject = trimmed(l.Subject)
	l.Message = trimmed(l.Message)
	if err := required("name", l.Name, 255); err != nil {
		return err
	}
	if l.Email == nil && l.Phone == nil {
		return fmt.Errorf("%w: email or phone is required", pg.ErrValidation)
	}
	if l.Email != nil && !strings.Contains(*l.Email, "@") {
		return fmt.Errorf("%w: email is not valid", pg.ErrValidation)
	}
	return nil
}

func newLeadTable() *pg.Table[Lead] {
	t := pg.NewTable("leads", func(l *Lead) *pg.Model { return &l.Model },
		pg.Mutable("name", func(l *Lead) *string { return &l.Name }),
		pg.Optional("email", func(l *Lead) **string { return &l.Email }),
		pg.Optional("phone", func(l *Lead) **string { return &l.Phone }),
		pg.Optional("subject", func(l *Lead) **string { return &l.Subject }),
		pg.Optional("message", func(l *Lead) **string { return &l.Message }),
	)
	t.Search = []string{"name", "email", "subject"}
	t.Check = (*Lead).Validate
	return t
}

// LeadEvents is told about every stored lead.
type LeadEvents interface {
	LeadCreated(ctx context.Context, l *Lead) error
}

// Leads stores contact requests and announces them.
type Leads struct {
	repo   *pg.Repository[Lead]
	events LeadEvents
}

func NewLeads(repo *pg.Repository[Lead], events LeadEvents) *Leads {
	return &Leads{repo: repo, events: events}
}

func (s *Leads) Repository() *pg.Repository[Lead] { return s.repo }

// Create stores l and then publishes it. A failed publish is logged only.
func (s *Leads) Create(ctx context.Context, l *Lead) (*Lead, error) {
	created, err := s.repo.Create(ctx, l)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, created)
	return created, nil
}

func (s *Leads) CreateBulk(ctx context.Context, leads []*Lead) ([]*Lead, error) {
	created, err := s.repo.CreateBulk(ctx, leads)
	if err != nil {
		return nil, err
	}
	for _, l := range created {
		s.announce(ctx, l)
	}
	return created, nil
}

func (s *Leads) announce(ctx context.Context, l *Lead) {
	if s.events == nil {
		return
	}
	if err := s.events.LeadCreated(ctx, l); err != nil {
		obs.Warn("lead event not published", map[string]any{"lead_id": l.ID.String(), "error": err})
	}
}
