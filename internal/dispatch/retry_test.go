package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtalk/flowtalk/internal/credential"
	"github.com/flowtalk/flowtalk/internal/logging"
	"github.com/flowtalk/flowtalk/internal/protocol"
	"github.com/flowtalk/flowtalk/internal/storage"
)

// conflictRepo wraps a real repository and injects uniqueness conflicts on
// the create paths, simulating id collisions and lost registration races.
type conflictRepo struct {
	storage.Repository

	userIDConflicts int  // CreateUser answers ErrDuplicateID this many times
	flowIDConflicts int  // CreateFlow answers ErrDuplicateID this many times
	alwaysConflict  bool // every create answers ErrDuplicateID

	// raceWinner, when set, is inserted under the incoming username right
	// before CreateUser reports ErrDuplicateUsername, so the caller's
	// re-read observes a concurrent registration that won the race.
	raceWinner *storage.User

	createUserCalls int
	createFlowCalls int
}

func (r *conflictRepo) CreateUser(ctx context.Context, user storage.User) error {
	r.createUserCalls++
	if r.alwaysConflict {
		return storage.ErrDuplicateID
	}
	if r.userIDConflicts > 0 {
		r.userIDConflicts--
		return storage.ErrDuplicateID
	}
	if r.raceWinner != nil {
		winner := *r.raceWinner
		winner.Username = user.Username
		winner.Login = user.Login
		r.raceWinner = nil
		if err := r.Repository.CreateUser(ctx, winner); err != nil {
			return err
		}
		return storage.ErrDuplicateUsername
	}
	return r.Repository.CreateUser(ctx, user)
}

func (r *conflictRepo) CreateFlow(ctx context.Context, flow storage.Flow) error {
	r.createFlowCalls++
	if r.alwaysConflict {
		return storage.ErrDuplicateID
	}
	if r.flowIDConflicts > 0 {
		r.flowIDConflicts--
		return storage.ErrDuplicateID
	}
	return r.Repository.CreateFlow(ctx, flow)
}

func newConflictService(repo *conflictRepo) *Service {
	repo.Repository = storage.NewMemory()
	return NewService(repo, logging.Discard())
}

func TestRegisterUserRetriesOnIDConflict(t *testing.T) {
	repo := &conflictRepo{userIDConflicts: 2}
	svc := newConflictService(repo)

	assert.Equal(t, "newreg", registerStatus(t, svc, "alice", "s3cret"))
	assert.Equal(t, 3, repo.createUserCalls, "two conflicting attempts plus the successful one")

	stored, err := repo.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, credential.CheckPassword(stored.Hash, []byte("s3cret"), stored.Salt, stored.Key))
}

func TestRegisterUserExhaustsIDAttempts(t *testing.T) {
	repo := &conflictRepo{alwaysConflict: true}
	svc := newConflictService(repo)

	resp := svc.Serve(context.Background(), registerRaw("alice", "s3cret"))
	env, ok := resp.(*protocol.Envelope)
	require.True(t, ok, "expected failure Envelope, got %T", resp)
	require.NotNil(t, env.Errors)
	assert.Equal(t, 500, env.Errors.Code)
	assert.Equal(t, "Internal Server Error", env.Errors.Status)
	assert.Equal(t, idAttempts, repo.createUserCalls)
}

func TestRegisterUserLosesRaceToMatchingRegistration(t *testing.T) {
	winner, err := credential.HashPassword([]byte("s3cret"), nil, nil)
	require.NoError(t, err)

	repo := &conflictRepo{raceWinner: &storage.User{UUID: 77, Hash: winner.Hash, Salt: winner.Salt, Key: winner.Key}}
	svc := newConflictService(repo)

	// The concurrent winner registered the same password, so the loser's
	// re-read compares equal.
	assert.Equal(t, "true", registerStatus(t, svc, "alice", "s3cret"))
	assert.Equal(t, 1, repo.createUserCalls, "no second create after losing the race")

	stored, err := repo.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(77), stored.UUID, "winner's record must survive")
}

func TestRegisterUserLosesRaceToMismatchedRegistration(t *testing.T) {
	winner, err := credential.HashPassword([]byte("other-password"), nil, nil)
	require.NoError(t, err)

	repo := &conflictRepo{raceWinner: &storage.User{UUID: 78, Hash: winner.Hash, Salt: winner.Salt, Key: winner.Key}}
	svc := newConflictService(repo)

	assert.Equal(t, "false", registerStatus(t, svc, "alice", "s3cret"))
	assert.Equal(t, 1, repo.createUserCalls)
}

func TestAddFlowRetriesOnIDConflict(t *testing.T) {
	repo := &conflictRepo{flowIDConflicts: 1}
	svc := newConflictService(repo)
	ctx := context.Background()

	resp := svc.Serve(ctx, []byte(`{"type":"add_flow","data":{"flow_type":"group","title":"general","info":"main"}}`))
	env, ok := resp.(*protocol.Envelope)
	require.True(t, ok)
	require.NotNil(t, env.Errors)
	assert.Equal(t, 200, env.Errors.Code)
	assert.Equal(t, 2, repo.createFlowCalls, "one conflicting attempt plus the successful one")

	flows, err := repo.ListFlows(ctx)
	require.NoError(t, err)
	assert.Len(t, flows, 1)
}

func TestAddFlowExhaustsIDAttempts(t *testing.T) {
	repo := &conflictRepo{alwaysConflict: true}
	svc := newConflictService(repo)

	resp := svc.Serve(context.Background(), []byte(`{"type":"add_flow","data":{"flow_type":"group","title":"general","info":"main"}}`))
	env, ok := resp.(*protocol.Envelope)
	require.True(t, ok)
	require.NotNil(t, env.Errors)
	assert.Equal(t, 500, env.Errors.Code)
	assert.Equal(t, idAttempts, repo.createFlowCalls)
}
