package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/models"
)

type unbindFixture struct {
	relationships *memoryRelationshipRepo
	unbinds       *memoryUnbindRepo
	events        *recordingEvents
	lifecycle     LifecycleService
	svc           UnbindService
}

func newUnbindFixture(t *testing.T, cooldown time.Duration) unbindFixture {
	t.Helper()
	relationships := newMemoryRelationshipRepo()
	unbinds := newMemoryUnbindRepo(relationships)
	events := &recordingEvents{}
	cache := NewStatusCache(nil, 0, testLogger())
	validate := testValidator()

	return unbindFixture{
		relationships: relationships,
		unbinds:       unbinds,
		events:        events,
		lifecycle:     NewLifecycleService(relationships, unbinds, events, cache, validate, testGraceWindow, testLogger()),
		svc:           NewUnbindService(relationships, unbinds, events, cache, validate, cooldown, 3, testLogger()),
	}
}

func (f unbindFixture) activeRelationship(t *testing.T, supervisorID, studentID uint) dto.RelationshipResponse {
	t.Helper()
	supervisor := Actor{ID: supervisorID, Role: models.ActorRoleSupervisor}
	student := Actor{ID: studentID, Role: models.ActorRoleStudent}

	created, err := f.lifecycle.OfferSupervision(context.Background(), supervisor, dto.OfferCreateRequest{
		StudentID: studentID,
		Role:      "main",
	})
	require.NoError(t, err)

	accepted, err := f.lifecycle.AcceptOffer(context.Background(), student, created.ID, allAcknowledgements())
	require.NoError(t, err)

	return accepted
}

func TestUnbindInitiateOpensNegotiation(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "supervisor changed research area entirely",
	})
	require.NoError(t, err)
	require.Equal(t, string(models.UnbindRequestStatePending), request.Status)
	require.Equal(t, string(models.ActorRoleStudent), request.InitiatorRole)

	status, err := f.lifecycle.GetRelationshipStatus(context.Background(), student, relationship.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.RelationshipStateUnbindPending), status.Relationship.State)
	require.NotNil(t, status.OpenUnbind)
	require.Equal(t, request.ID, status.OpenUnbind.ID)
}

func TestUnbindInitiateReasonLength(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)
	student := Actor{ID: 42, Role: models.ActorRoleStudent}

	// Nine characters misses the minimum by one.
	_, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{Reason: "too brief"})
	require.ErrorIs(t, err, ErrInvalidReason)

	_, err = f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: strings.Repeat("x", 1001),
	})
	require.ErrorIs(t, err, ErrInvalidReason)

	// Exactly ten characters clears the gate.
	_, err = f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{Reason: "because so"})
	require.NoError(t, err)
}

func TestUnbindInitiateReasonLengthCountsCharacters(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)
	student := Actor{ID: 42, Role: models.ActorRoleStudent}

	// Nine Cyrillic characters occupy eighteen bytes but still miss the
	// ten-character minimum.
	_, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: strings.Repeat("п", 9),
	})
	require.ErrorIs(t, err, ErrInvalidReason)

	// A thousand of them is exactly the maximum, despite two thousand bytes.
	_, err = f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: strings.Repeat("п", 1000),
	})
	require.NoError(t, err)
}

func TestUnbindInitiateSanitizesReason(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)
	student := Actor{ID: 42, Role: models.ActorRoleStudent}

	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "<b>no more joint publications</b><script>alert(1)</script>",
	})
	require.NoError(t, err)
	require.Equal(t, "no more joint publications", request.Reason)

	// Markup-only reasons sanitize down to nothing and are rejected.
	relationship2 := f.activeRelationship(t, 8, 43)
	_, err = f.svc.Initiate(context.Background(), Actor{ID: 43, Role: models.ActorRoleStudent}, relationship2.ID,
		dto.UnbindCreateRequest{Reason: "<script>document.cookie</script>"})
	require.ErrorIs(t, err, ErrInvalidReason)
}

func TestUnbindInitiateRequiresActiveRelationship(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)

	supervisor := Actor{ID: 7, Role: models.ActorRoleSupervisor}
	created, err := f.lifecycle.OfferSupervision(context.Background(), supervisor, dto.OfferCreateRequest{StudentID: 42, Role: "main"})
	require.NoError(t, err)

	_, err = f.svc.Initiate(context.Background(), supervisor, created.ID, dto.UnbindCreateRequest{
		Reason: "offer was a mistake from the start",
	})
	require.ErrorIs(t, err, ErrRelationshipNotActive)
}

func TestUnbindInitiateRejectsSecondOpenRequest(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	supervisor := Actor{ID: 7, Role: models.ActorRoleSupervisor}

	_, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "irreconcilable topic disagreement",
	})
	require.NoError(t, err)

	_, err = f.svc.Initiate(context.Background(), supervisor, relationship.ID, dto.UnbindCreateRequest{
		Reason: "student stopped attending meetings",
	})
	require.ErrorIs(t, err, ErrRequestAlreadyOpen)
}

func TestUnbindInitiateGuardsParties(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	outsider := Actor{ID: 99, Role: models.ActorRoleStudent}
	_, err := f.svc.Initiate(context.Background(), outsider, relationship.ID, dto.UnbindCreateRequest{
		Reason: "I do not even know these people",
	})
	require.ErrorIs(t, err, ErrNotAParty)

	_, err = f.svc.Initiate(context.Background(), outsider, 12345, dto.UnbindCreateRequest{
		Reason: "missing relationship entirely",
	})
	require.ErrorIs(t, err, ErrRelationshipNotFound)
}

func TestUnbindApproveTerminatesRelationship(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	supervisor := Actor{ID: 7, Role: models.ActorRoleSupervisor}

	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "moving to another university",
	})
	require.NoError(t, err)

	resolution, err := f.svc.Respond(context.Background(), supervisor, request.ID, dto.UnbindRespondRequest{
		Decision: DecisionApprove,
		Feedback: "good luck at the new place",
	})
	require.NoError(t, err)
	require.Equal(t, string(models.UnbindRequestStateApproved), resolution.Request.Status)
	require.Equal(t, "good luck at the new place", resolution.Request.Feedback)
	require.NotNil(t, resolution.Request.RespondedAt)
	require.Equal(t, string(models.RelationshipStateTerminated), resolution.Relationship.State)
	require.Equal(t, []models.LifecycleEventType{
		models.EventOfferCreated, models.EventOfferAccepted,
		models.EventUnbindPending, models.EventUnbindApproved,
	}, f.events.types())
}

func TestUnbindRespondOnlyCounterparty(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "weekly meetings were cancelled for months",
	})
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), student, request.ID, dto.UnbindRespondRequest{Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrNotCounterparty)

	outsider := Actor{ID: 99, Role: models.ActorRoleSupervisor}
	_, err = f.svc.Respond(context.Background(), outsider, request.ID, dto.UnbindRespondRequest{Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrNotAParty)
}

func TestUnbindRejectArmsCooldown(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	supervisor := Actor{ID: 7, Role: models.ActorRoleSupervisor}

	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "I want a supervisor closer to my topic",
	})
	require.NoError(t, err)

	resolution, err := f.svc.Respond(context.Background(), supervisor, request.ID, dto.UnbindRespondRequest{
		Decision: DecisionReject,
		Feedback: "let us talk about this first",
	})
	require.NoError(t, err)
	require.Equal(t, string(models.UnbindRequestStateRejected), resolution.Request.Status)
	require.Equal(t, string(models.RelationshipStateActive), resolution.Relationship.State)
	require.Equal(t, 1, resolution.Relationship.RejectionCount)
	require.NotNil(t, resolution.Relationship.CooldownUntil)

	_, err = f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "nothing has changed since last time",
	})
	require.ErrorIs(t, err, ErrCooldownActive)

	var cooldown *CooldownActiveError
	require.ErrorAs(t, err, &cooldown)
	require.Greater(t, cooldown.Remaining, time.Duration(0))
	require.WithinDuration(t, *resolution.Relationship.CooldownUntil, cooldown.Until, time.Second)
}

func TestUnbindThirdRejectionForceTerminates(t *testing.T) {
	// Near-zero cooldown so every round can re-initiate immediately.
	f := newUnbindFixture(t, time.Nanosecond)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	supervisor := Actor{ID: 7, Role: models.ActorRoleSupervisor}

	for round := 0; round < 2; round++ {
		request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
			Reason: "the supervision has effectively stopped",
		})
		require.NoError(t, err)

		resolution, err := f.svc.Respond(context.Background(), supervisor, request.ID, dto.UnbindRespondRequest{
			Decision: DecisionReject,
		})
		require.NoError(t, err)
		require.Equal(t, string(models.UnbindRequestStateRejected), resolution.Request.Status)
		require.Equal(t, round+1, resolution.Relationship.RejectionCount)
	}

	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "third and final attempt to end this",
	})
	require.NoError(t, err)

	resolution, err := f.svc.Respond(context.Background(), supervisor, request.ID, dto.UnbindRespondRequest{
		Decision: DecisionReject,
	})
	require.NoError(t, err)
	require.Equal(t, string(models.UnbindRequestStateForceTerminated), resolution.Request.Status)
	require.Equal(t, string(models.RelationshipStateTerminated), resolution.Relationship.State)
	require.Equal(t, 3, resolution.Relationship.RejectionCount)

	types := f.events.types()
	require.Equal(t, models.EventForceTerminated, types[len(types)-1])
}

func TestUnbindThresholdOverridesCooldown(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	// Rejection count at the threshold and a cooldown still running: the
	// escalation path must stay open.
	stored := f.relationships.relationships[relationship.ID]
	stored.RejectionCount = 3
	until := time.Now().Add(time.Hour)
	stored.CooldownUntil = &until
	f.relationships.relationships[relationship.ID] = stored

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	_, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "escalation must remain possible",
	})
	require.NoError(t, err)
}

func TestUnbindRespondTwiceIsStale(t *testing.T) {
	f := newUnbindFixture(t, time.Hour)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	supervisor := Actor{ID: 7, Role: models.ActorRoleSupervisor}

	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "ending this by mutual agreement",
	})
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), supervisor, request.ID, dto.UnbindRespondRequest{Decision: DecisionApprove})
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), supervisor, request.ID, dto.UnbindRespondRequest{Decision: DecisionReject})
	require.ErrorIs(t, err, ErrStaleState)
}

func TestUnbindListForRelationship(t *testing.T) {
	f := newUnbindFixture(t, time.Nanosecond)
	relationship := f.activeRelationship(t, 7, 42)

	student := Actor{ID: 42, Role: models.ActorRoleStudent}
	supervisor := Actor{ID: 7, Role: models.ActorRoleSupervisor}

	request, err := f.svc.Initiate(context.Background(), student, relationship.ID, dto.UnbindCreateRequest{
		Reason: "first round of the negotiation",
	})
	require.NoError(t, err)
	_, err = f.svc.Respond(context.Background(), supervisor, request.ID, dto.UnbindRespondRequest{Decision: DecisionReject})
	require.NoError(t, err)

	_, err = f.svc.Initiate(context.Background(), supervisor, relationship.ID, dto.UnbindCreateRequest{
		Reason: "second round, other direction",
	})
	require.NoError(t, err)

	requests, err := f.svc.ListForRelationship(context.Background(), student, relationship.ID)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	outsider := Actor{ID: 99, Role: models.ActorRoleStudent}
	_, err = f.svc.ListForRelationship(context.Background(), outsider, relationship.ID)
	require.ErrorIs(t, err, ErrNotAParty)
}
