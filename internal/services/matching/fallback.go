package matching

import (
	"context"
	"log/slog"
	"time"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/BridgeAid/MatchBox/internal/storage/pgmatch"
	"github.com/pkg/errors"
)

// RandSource is the injectable randomness behind the routing policy, so
// boundary values are reproducible in tests.
type RandSource interface {
	Float64() float64
}

// FlagSocialWorkerRouting switches fallback routing from the two-way split
// (online retry / public service) to equal thirds including social workers.
const FlagSocialWorkerRouting = "social-worker-routing"

type RouteDecision string

const (
	RouteOnlineRetry   RouteDecision = "online_retry"
	RoutePublicService RouteDecision = "public_service"
	RouteSocialWorker  RouteDecision = "social_worker"
)

// decideRoute maps one uniform sample in [0,1) to a routing bucket.
// Two-way: [0, 0.5) online retry, [0.5, 1) public service.
// Three-way: equal thirds online retry / public service / social worker.
func decideRoute(sample float64, threeWay bool) RouteDecision {
	if threeWay {
		switch {
		case sample < 1.0/3.0:
			return RouteOnlineRetry
		case sample < 2.0/3.0:
			return RoutePublicService
		default:
			return RouteSocialWorker
		}
	}
	if sample < 0.5 {
		return RouteOnlineRetry
	}
	return RoutePublicService
}

// QueueFallback deterministically parks the requester in waiting_for_match
// and schedules the next sweep attempt. Used when the caller asked to queue
// on failure.
func (s *Service) QueueFallback(ctx context.Context, req *models.Requester) (*QueueOutcome, error) {
	delay := s.retry.NextAttemptDelay(req.AttemptCount + 1)
	nextAttempt := time.Now().UTC().Add(delay)

	if err := s.repo.QueueRequester(ctx, req.ID, nextAttempt); err != nil {
		return nil, err
	}

	s.dispatchQueueEffects(ctx, req)

	return &QueueOutcome{
		RequesterID:   req.ID,
		Status:        models.RequesterStatusWaitingForMatch,
		NextAttemptAt: nextAttempt,
	}, nil
}

// RouteUnmatched applies the randomized fallback policy to a requester no
// tier could serve. The online-retry bucket re-runs the Online strategy over
// a fresh candidate pool and falls back to public service when that also
// finds nobody.
func (s *Service) RouteUnmatched(ctx context.Context, requesterID uint64) (Outcome, error) {
	req, err := s.repo.GetRequester(ctx, requesterID)
	if err != nil {
		return s.failClosed(requesterID, "load requester for routing", err)
	}
	if req.Status.Terminal() {
		return NoMatchOutcome(), nil
	}

	threeWay := s.flags.IsEnabled(ctx, FlagSocialWorkerRouting)
	sample := s.rnd.Float64()
	decision := decideRoute(sample, threeWay)
	slog.Info("fallback routing", "requester_id", req.ID, "sample", sample, "decision", string(decision))

	if decision == RouteOnlineRetry {
		pool, err := s.repo.ListCandidates(ctx, req.ID, req.Category)
		if err != nil {
			return s.failClosed(req.ID, "list candidates for online retry", err)
		}
		m, err := s.commitOnline(ctx, req, pool)
		if err != nil {
			return s.failClosed(req.ID, "online retry commit", err)
		}
		if m != nil {
			return Outcome{Kind: OutcomeMatch, Match: m}, nil
		}
		// Nobody online either: this branch always ends in public service.
		decision = RoutePublicService
	}

	status := models.RequesterStatusPublicService
	if decision == RouteSocialWorker {
		status = models.RequesterStatusSocialWorker
	}

	if err := s.repo.SetRequesterStatus(ctx, req.ID, status); err != nil {
		return s.failClosed(req.ID, "route requester", err)
	}

	s.dispatchRouteEffects(ctx, req, status)

	return Outcome{Kind: OutcomeRouted, Routed: &RouteOutcome{
		RequesterID: req.ID,
		Status:      status,
	}}, nil
}

// commitOnline runs only the Online strategy over the pool, re-selecting on
// capacity conflicts until the pool is exhausted. A nil match with nil error
// means nobody was available.
func (s *Service) commitOnline(ctx context.Context, req *models.Requester, pool []*models.VolunteerAvailability) (*models.Match, error) {
	for len(pool) > 0 {
		v := matchOnline(req, pool)
		if v == nil {
			return nil, nil
		}
		m, err := s.commit(ctx, req, v, models.MatchTypeSystem, models.TierOnline)
		if errors.Is(err, pgmatch.ErrCapacityConflict) {
			pool = removeVolunteer(pool, v.VolunteerID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, nil
}
