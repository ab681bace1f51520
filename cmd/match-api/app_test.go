package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BridgeAid/MatchBox/internal/flags"
	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/BridgeAid/MatchBox/internal/services/matching"
	"github.com/BridgeAid/MatchBox/internal/storage/pgmatch"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) CreateRequester(ctx context.Context, in models.RequesterCreateInput, status models.RequesterStatus) (*models.Requester, error) {
	return &models.Requester{ID: 1, Name: in.Name, Email: in.Email, Category: in.Category, Status: status}, nil
}
func (r *fakeRepo) GetRequester(ctx context.Context, id uint64) (*models.Requester, error) {
	return &models.Requester{ID: id, Status: models.RequesterStatusOpen}, nil
}
func (r *fakeRepo) HasOpenRequester(ctx context.Context, email string, category models.SupportCategory) (bool, error) {
	return false, nil
}
func (r *fakeRepo) SetRequesterStatus(ctx context.Context, id uint64, to models.RequesterStatus) error {
	return nil
}
func (r *fakeRepo) QueueRequester(ctx context.Context, id uint64, nextAttemptAt time.Time) error {
	return nil
}
func (r *fakeRepo) ListCandidates(ctx context.Context, requesterID uint64, category models.SupportCategory) ([]*models.VolunteerAvailability, error) {
	return []*models.VolunteerAvailability{}, nil
}
func (r *fakeRepo) CommitMatch(ctx context.Context, c pgmatch.MatchCommit) (*models.Match, error) {
	return nil, pgmatch.ErrNotFound
}
func (r *fakeRepo) GetMatch(ctx context.Context, id uint64) (*models.Match, error) {
	return nil, pgmatch.ErrNotFound
}
func (r *fakeRepo) CreateMatchConfirmation(ctx context.Context, requesterID, volunteerID uint64) (*models.MatchConfirmation, error) {
	return &models.MatchConfirmation{ID: 1, RequesterID: requesterID, VolunteerID: volunteerID}, nil
}
func (r *fakeRepo) UpsertVolunteer(ctx context.Context, v *models.VolunteerAvailability) (*models.VolunteerAvailability, error) {
	return v, nil
}
func (r *fakeRepo) ListStatusHistory(ctx context.Context, kind models.HistoryKind, entityID uint64, limit, offset int) ([]*models.StatusHistoryEntry, error) {
	return []*models.StatusHistoryEntry{}, nil
}

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunMatchAPI_SwaggerServed(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	svc := matching.New(&fakeRepo{}, nil, nil, flags.Static{}, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)

	opts := matchAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "requester.created",
		consumerGroup: "match-api",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runMatchAPI(ctx, opts, svc, fakeConsumer{})
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "\"swagger\"")

	resp2, err := http.Get("http://" + httpAddr + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, 200, resp2.StatusCode)

	cancel()
	require.Error(t, <-errCh)
}

func TestRunMatchAPI_MissingSwagger(t *testing.T) {
	svc := matching.New(&fakeRepo{}, nil, nil, flags.Static{}, nil, "")
	err := runMatchAPI(context.Background(), matchAPIOpts{httpAddr: "127.0.0.1:0"}, svc, fakeConsumer{})
	require.Error(t, err)
}
