package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/BridgeAid/MatchBox/internal/broker/messages"
	"github.com/BridgeAid/MatchBox/internal/cache"
	"github.com/BridgeAid/MatchBox/internal/flags"
	"github.com/BridgeAid/MatchBox/internal/integrations/mailer"
	"github.com/BridgeAid/MatchBox/internal/integrations/ticketing"
	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/BridgeAid/MatchBox/internal/storage/pgmatch"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateRequester(ctx context.Context, in models.RequesterCreateInput, status models.RequesterStatus) (*models.Requester, error)
	GetRequester(ctx context.Context, id uint64) (*models.Requester, error)
	HasOpenRequester(ctx context.Context, email string, category models.SupportCategory) (bool, error)
	SetRequesterStatus(ctx context.Context, id uint64, to models.RequesterStatus) error
	QueueRequester(ctx context.Context, id uint64, nextAttemptAt time.Time) error
	ListCandidates(ctx context.Context, requesterID uint64, category models.SupportCategory) ([]*models.VolunteerAvailability, error)
	CommitMatch(ctx context.Context, c pgmatch.MatchCommit) (*models.Match, error)
	GetMatch(ctx context.Context, id uint64) (*models.Match, error)
	CreateMatchConfirmation(ctx context.Context, requesterID, volunteerID uint64) (*models.MatchConfirmation, error)
	UpsertVolunteer(ctx context.Context, v *models.VolunteerAvailability) (*models.VolunteerAvailability, error)
	ListStatusHistory(ctx context.Context, kind models.HistoryKind, entityID uint64, limit, offset int) ([]*models.StatusHistoryEntry, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Outcome is the tagged result every engine caller receives: exactly one of
// a committed match, a queue record, a routing record, or no match at all.
type OutcomeKind string

const (
	OutcomeMatch   OutcomeKind = "match"
	OutcomeQueued  OutcomeKind = "queued"
	OutcomeRouted  OutcomeKind = "routed"
	OutcomeNoMatch OutcomeKind = "no_match"
)

type QueueOutcome struct {
	RequesterID   uint64                 `json:"requesterId"`
	Status        models.RequesterStatus `json:"status"`
	NextAttemptAt time.Time              `json:"nextAttemptAt"`
}

type RouteOutcome struct {
	RequesterID uint64                 `json:"requesterId"`
	Status      models.RequesterStatus `json:"status"`
}

type Outcome struct {
	Kind   OutcomeKind   `json:"kind"`
	Match  *models.Match `json:"match,omitempty"`
	Queue  *QueueOutcome `json:"queue,omitempty"`
	Routed *RouteOutcome `json:"routed,omitempty"`
}

func NoMatchOutcome() Outcome {
	return Outcome{Kind: OutcomeNoMatch}
}

// Email templates sent through the notification collaborator.
const (
	tmplMatchRequester = "match_created_requester"
	tmplMatchVolunteer = "match_created_volunteer"
	tmplQueued         = "requester_queued"
	tmplPublicService  = "requester_public_service"
	tmplSocialWorker   = "requester_social_worker"
)

type Service struct {
	repo    Repository
	tickets ticketing.Client
	mail    mailer.Client
	flags   flags.Provider

	producer     Producer
	createdTopic string
	outcomeTopic string

	rnd   RandSource
	retry *RetryPlanner

	idealDistanceKm float64

	cache    cache.BytesCache
	cacheTTL time.Duration

	homeCountry string
}

func New(repo Repository, tickets ticketing.Client, mail mailer.Client, fp flags.Provider, producer Producer, outcomeTopic string) *Service {
	return &Service{
		repo:         repo,
		tickets:      tickets,
		mail:         mail,
		flags:        fp,
		producer:     producer,
		createdTopic: messages.TopicRequesterCreated,
		outcomeTopic: outcomeTopic,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		retry:        DefaultRetryPlanner(),
		homeCountry:  "BR",

		idealDistanceKm: IdealDistanceKm,
	}
}

// WithCreatedTopic overrides the topic intake events are published to. It
// must match the topic the matching consumer subscribes to.
func (s *Service) WithCreatedTopic(topic string) *Service {
	if topic != "" {
		s.createdTopic = topic
	}
	return s
}

func (s *Service) WithIdealDistance(km float64) *Service {
	if km > 0 {
		s.idealDistanceKm = km
	}
	return s
}

func (s *Service) WithRand(r RandSource) *Service {
	if r != nil {
		s.rnd = r
	}
	return s
}

func (s *Service) WithRetryPlanner(p *RetryPlanner) *Service {
	if p != nil {
		s.retry = p
	}
	return s
}

func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

func (s *Service) WithHomeCountry(country string) *Service {
	if country != "" {
		s.homeCountry = country
	}
	return s
}

// CreateRequester validates and persists an intake record. International and
// duplicate intakes land directly in their terminal status so the engine
// never touches them; everybody else starts open and a requester.created
// event is published for the matching consumer.
func (s *Service) CreateRequester(ctx context.Context, in models.RequesterCreateInput) (*models.Requester, error) {
	if in.Name == "" {
		return nil, errors.New("name is required")
	}
	if in.Email == "" {
		return nil, errors.New("email is required")
	}
	if !in.Category.Valid() {
		return nil, errors.Errorf("unknown support category %q", in.Category)
	}

	status := models.RequesterStatusOpen
	if in.Country != "" && in.Country != s.homeCountry {
		status = models.RequesterStatusClosed
	} else {
		dup, err := s.repo.HasOpenRequester(ctx, in.Email, in.Category)
		if err != nil {
			return nil, err
		}
		if dup {
			status = models.RequesterStatusDuplicated
		}
	}

	r, err := s.repo.CreateRequester(ctx, in, status)
	if err != nil {
		return nil, err
	}

	if status == models.RequesterStatusOpen && s.producer != nil {
		msg := messages.RequesterCreated{
			RequesterID: r.ID,
			Category:    string(r.Category),
			CreatedAt:   r.CreatedAt,
		}
		b, _ := json.Marshal(msg)
		if err := s.producer.Publish(ctx, s.createdTopic, []byte(strconv.FormatUint(r.ID, 10)), b); err != nil {
			slog.Warn("publish requester.created", "requester_id", r.ID, "error", err.Error())
		}
	}

	return r, nil
}

func (s *Service) GetRequester(ctx context.Context, id uint64) (*models.Requester, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, requesterKey(id)); err == nil && ok {
			var r models.Requester
			if json.Unmarshal(b, &r) == nil {
				return &r, nil
			}
		}
	}

	r, err := s.repo.GetRequester(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setRequesterCache(ctx, r)
	return r, nil
}

func (s *Service) GetMatch(ctx context.Context, id uint64) (*models.Match, error) {
	return s.repo.GetMatch(ctx, id)
}

func (s *Service) ListRequesterHistory(ctx context.Context, requesterID uint64, limit, offset int) ([]*models.StatusHistoryEntry, error) {
	return s.repo.ListStatusHistory(ctx, models.HistoryKindRequester, requesterID, limit, offset)
}

func (s *Service) UpsertVolunteer(ctx context.Context, v *models.VolunteerAvailability) (*models.VolunteerAvailability, error) {
	if v == nil || v.VolunteerID == 0 {
		return nil, errors.New("volunteerId is required")
	}
	if !v.Category.Valid() {
		return nil, errors.Errorf("unknown support category %q", v.Category)
	}
	if v.MaxLoad <= 0 {
		return nil, errors.New("maxLoad must be positive")
	}
	if v.CurrentLoad < 0 || v.CurrentLoad > v.MaxLoad {
		return nil, errors.New("currentLoad out of range")
	}
	// Registration availability: room for at least one more match and not
	// administratively fully booked.
	v.IsAvailable = v.CurrentLoad < v.MaxLoad && v.Condition != models.ConditionFullyBooked
	return s.repo.UpsertVolunteer(ctx, v)
}

// ReserveVolunteer records a pending manual confirmation, which keeps the
// volunteer out of this requester's candidate pool from now on.
func (s *Service) ReserveVolunteer(ctx context.Context, requesterID, volunteerID uint64) (*models.MatchConfirmation, error) {
	if requesterID == 0 || volunteerID == 0 {
		return nil, errors.New("requesterId and volunteerId are required")
	}
	return s.repo.CreateMatchConfirmation(ctx, requesterID, volunteerID)
}

// MatchRequester runs one full engine pass for a requester: candidate pool,
// tier cascade, commit with conflict re-selection, then queue fallback or
// plain no-match. NotFound for a stale requester id is the only error that
// escapes; anything else is logged and reported as no match.
func (s *Service) MatchRequester(ctx context.Context, requesterID uint64, matchType models.MatchType, queueOnFailure bool) (Outcome, error) {
	req, err := s.repo.GetRequester(ctx, requesterID)
	if err != nil {
		return s.failClosed(requesterID, "load requester", err)
	}
	if req.Status.Terminal() {
		slog.Info("requester in terminal status, skipping match", "requester_id", req.ID, "status", string(req.Status))
		return NoMatchOutcome(), nil
	}
	if matchType == "" {
		matchType = models.MatchTypeSystem
	}

	pool, err := s.repo.ListCandidates(ctx, req.ID, req.Category)
	if err != nil {
		return s.failClosed(req.ID, "list candidates", err)
	}

	for len(pool) > 0 {
		v, tier := SelectCandidate(req, pool, s.idealDistanceKm)
		if v == nil {
			break
		}
		m, err := s.commit(ctx, req, v, matchType, tier)
		if errors.Is(err, pgmatch.ErrCapacityConflict) {
			// Somebody else filled this volunteer first. Drop them and
			// re-run the cascade over what is left.
			slog.Info("capacity conflict, re-selecting", "requester_id", req.ID, "volunteer_id", v.VolunteerID)
			pool = removeVolunteer(pool, v.VolunteerID)
			continue
		}
		if err != nil {
			return s.failClosed(req.ID, "commit match", err)
		}
		return Outcome{Kind: OutcomeMatch, Match: m}, nil
	}

	if queueOnFailure {
		q, err := s.QueueFallback(ctx, req)
		if err != nil {
			return s.failClosed(req.ID, "queue fallback", err)
		}
		return Outcome{Kind: OutcomeQueued, Queue: q}, nil
	}

	return NoMatchOutcome(), nil
}

// HandleRequesterCreated is the Kafka entrypoint: a freshly created
// requester gets a matching pass with the queue fallback enabled.
func (s *Service) HandleRequesterCreated(ctx context.Context, msg messages.RequesterCreated) error {
	if msg.RequesterID == 0 {
		return errors.New("requester_id is required")
	}
	out, err := s.MatchRequester(ctx, msg.RequesterID, models.MatchTypeSystem, true)
	if err != nil {
		// Stale ids are logged and dropped so the consumer keeps moving.
		slog.Warn("match for created requester", "requester_id", msg.RequesterID, "error", err.Error())
		return nil
	}
	slog.Info("requester.created handled", "requester_id", msg.RequesterID, "outcome", string(out.Kind))
	return nil
}

func (s *Service) commit(ctx context.Context, req *models.Requester, v *models.VolunteerAvailability, matchType models.MatchType, tier models.MatchTier) (*models.Match, error) {
	m, err := s.repo.CommitMatch(ctx, pgmatch.MatchCommit{
		Requester: req,
		Volunteer: v,
		Type:      matchType,
		Tier:      tier,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("match committed",
		"match_id", m.ID, "requester_id", req.ID, "volunteer_id", v.VolunteerID, "tier", string(tier))

	s.dispatchMatchEffects(ctx, req, v, m)
	s.refreshRequesterCache(ctx, req.ID)
	return m, nil
}

// failClosed implements the orchestrator error boundary: NotFound surfaces
// because it means stale input, everything else is logged and turned into a
// no-match outcome.
func (s *Service) failClosed(requesterID uint64, op string, err error) (Outcome, error) {
	if errors.Is(err, pgmatch.ErrNotFound) {
		return Outcome{}, errors.Wrapf(err, "%s (requester %d)", op, requesterID)
	}
	slog.Error("matching failed", "op", op, "requester_id", requesterID, "error", err.Error())
	return NoMatchOutcome(), nil
}

// Post-commit effects. Each one is independently fallible and only logged;
// the committed transaction stands regardless.

func (s *Service) dispatchMatchEffects(ctx context.Context, req *models.Requester, v *models.VolunteerAvailability, m *models.Match) {
	s.updateTicket(ctx, req.TicketID, "pending", fmt.Sprintf("matched with volunteer %s (%s tier)", v.Name, m.Tier))
	s.updateTicket(ctx, v.TicketID, "pending", fmt.Sprintf("matched with requester %s", req.Name))

	s.sendEmail(ctx, req.Email, tmplMatchRequester, map[string]string{
		"requester_name": req.Name,
		"volunteer_name": v.Name,
		"category":       string(m.Category),
	})
	s.sendEmail(ctx, v.Email, tmplMatchVolunteer, map[string]string{
		"requester_name": req.Name,
		"volunteer_name": v.Name,
		"category":       string(m.Category),
	})

	vid := v.VolunteerID
	mid := m.ID
	s.publishOutcome(ctx, messages.MatchOutcome{
		RequesterID: req.ID,
		Kind:        string(OutcomeMatch),
		MatchID:     &mid,
		VolunteerID: &vid,
		Tier:        string(m.Tier),
		Status:      string(models.RequesterStatusMatched),
		OccurredAt:  time.Now().UTC(),
	})
}

func (s *Service) dispatchQueueEffects(ctx context.Context, req *models.Requester) {
	s.sendEmail(ctx, req.Email, tmplQueued, map[string]string{
		"requester_name": req.Name,
	})
	s.publishOutcome(ctx, messages.MatchOutcome{
		RequesterID: req.ID,
		Kind:        string(OutcomeQueued),
		Status:      string(models.RequesterStatusWaitingForMatch),
		OccurredAt:  time.Now().UTC(),
	})
	s.refreshRequesterCache(ctx, req.ID)
}

func (s *Service) dispatchRouteEffects(ctx context.Context, req *models.Requester, status models.RequesterStatus) {
	tmpl := tmplPublicService
	if status == models.RequesterStatusSocialWorker {
		tmpl = tmplSocialWorker
	}
	s.updateTicket(ctx, req.TicketID, "open", fmt.Sprintf("routed to %s", status))
	s.sendEmail(ctx, req.Email, tmpl, map[string]string{
		"requester_name": req.Name,
	})
	s.publishOutcome(ctx, messages.MatchOutcome{
		RequesterID: req.ID,
		Kind:        string(OutcomeRouted),
		Status:      string(status),
		OccurredAt:  time.Now().UTC(),
	})
	s.refreshRequesterCache(ctx, req.ID)
}

func (s *Service) updateTicket(ctx context.Context, ticketID *uint64, status, comment string) {
	if s.tickets == nil || ticketID == nil {
		return
	}
	ref, err := s.tickets.UpdateTicket(ctx, ticketing.Ticket{ID: *ticketID, Status: status, Comment: comment})
	if err != nil || ref == nil {
		slog.Warn("ticket update failed", "ticket_id", *ticketID, "error", errString(err))
	}
}

func (s *Service) sendEmail(ctx context.Context, recipient, templateID string, vars map[string]string) {
	if s.mail == nil || recipient == "" {
		return
	}
	ok, err := s.mail.Send(ctx, recipient, templateID, vars)
	if err != nil || !ok {
		slog.Warn("email send failed", "template", templateID, "error", errString(err))
	}
}

func (s *Service) publishOutcome(ctx context.Context, msg messages.MatchOutcome) {
	if s.producer == nil || s.outcomeTopic == "" {
		return
	}
	b, _ := json.Marshal(msg)
	if err := s.producer.Publish(ctx, s.outcomeTopic, []byte(strconv.FormatUint(msg.RequesterID, 10)), b); err != nil {
		slog.Warn("publish match outcome", "requester_id", msg.RequesterID, "error", err.Error())
	}
}

func (s *Service) refreshRequesterCache(ctx context.Context, id uint64) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	r, err := s.repo.GetRequester(ctx, id)
	if err != nil {
		return
	}
	s.setRequesterCache(ctx, r)
}

func (s *Service) setRequesterCache(ctx context.Context, r *models.Requester) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	b, _ := json.Marshal(r)
	_ = s.cache.Set(ctx, requesterKey(r.ID), b, s.cacheTTL)
}

func requesterKey(id uint64) string {
	return fmt.Sprintf("requester:%d:current", id)
}

func errString(err error) string {
	if err == nil {
		return "collaborator returned no result"
	}
	return err.Error()
}
