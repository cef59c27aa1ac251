package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mentorium/supervision-api/internal/models"
)

func TestUnbindRepositoryOpenPairsRequestWithTransition(t *testing.T) {
	db := setupSupervisionTestDB(t)
	relationships := NewRelationshipRepository(db)
	unbinds := NewUnbindRepository(db)

	relationship := seedRelationship(t, db, models.RelationshipStateActive)

	request := models.UnbindRequest{
		RelationshipID: relationship.ID,
		InitiatorRole:  models.ActorRoleStudent,
		Reason:         "supervision has effectively stopped",
		Status:         models.UnbindRequestStatePending,
	}

	updated, err := unbinds.Open(context.Background(), &request, relationship)
	require.NoError(t, err)
	require.NotZero(t, request.ID)
	require.Equal(t, models.RelationshipStateUnbindPending, updated.State)

	open, err := unbinds.GetOpenByRelationship(context.Background(), relationship.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, open.ID)

	// A second initiation from the same stale snapshot fails and leaves no
	// second request behind.
	second := models.UnbindRequest{
		RelationshipID: relationship.ID,
		InitiatorRole:  models.ActorRoleSupervisor,
		Reason:         "racing initiation",
		Status:         models.UnbindRequestStatePending,
	}
	_, err = unbinds.Open(context.Background(), &second, relationship)
	require.ErrorIs(t, err, ErrStale)

	requests, err := unbinds.ListByRelationship(context.Background(), relationship.ID)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	fresh, err := relationships.GetByID(context.Background(), relationship.ID)
	require.NoError(t, err)
	require.Equal(t, models.RelationshipStateUnbindPending, fresh.State)
}

func TestUnbindRepositoryResolveWinsOnce(t *testing.T) {
	db := setupSupervisionTestDB(t)
	relationships := NewRelationshipRepository(db)
	unbinds := NewUnbindRepository(db)

	relationship := seedRelationship(t, db, models.RelationshipStateActive)
	request := models.UnbindRequest{
		RelationshipID: relationship.ID,
		InitiatorRole:  models.ActorRoleStudent,
		Reason:         "moving to another university",
		Status:         models.UnbindRequestStatePending,
	}
	pending, err := unbinds.Open(context.Background(), &request, relationship)
	require.NoError(t, err)

	now := time.Now().UTC()
	resolved, updated, err := unbinds.Resolve(context.Background(), request.ID, UnbindResolution{
		Outcome:      models.UnbindRequestStateApproved,
		Feedback:     "agreed",
		RespondedAt:  now,
		Relationship: pending,
		NextState:    models.RelationshipStateTerminated,
	})
	require.NoError(t, err)
	require.Equal(t, models.UnbindRequestStateApproved, resolved.Status)
	require.Equal(t, "agreed", resolved.Feedback)
	require.NotNil(t, resolved.RespondedAt)
	require.Equal(t, models.RelationshipStateTerminated, updated.State)

	// The losing responder observes ErrStale and nothing changes.
	_, _, err = unbinds.Resolve(context.Background(), request.ID, UnbindResolution{
		Outcome:      models.UnbindRequestStateRejected,
		RespondedAt:  now,
		Relationship: pending,
		NextState:    models.RelationshipStateActive,
	})
	require.ErrorIs(t, err, ErrStale)

	final, err := unbinds.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, models.UnbindRequestStateApproved, final.Status)

	_, err = relationships.GetByID(context.Background(), relationship.ID)
	require.NoError(t, err)
}

func TestUnbindRepositoryResolveRejectKeepsRelationshipActive(t *testing.T) {
	db := setupSupervisionTestDB(t)
	relationships := NewRelationshipRepository(db)
	unbinds := NewUnbindRepository(db)

	relationship := seedRelationship(t, db, models.RelationshipStateActive)
	request := models.UnbindRequest{
		RelationshipID: relationship.ID,
		InitiatorRole:  models.ActorRoleSupervisor,
		Reason:         "student unreachable for a semester",
		Status:         models.UnbindRequestStatePending,
	}
	pending, err := unbinds.Open(context.Background(), &request, relationship)
	require.NoError(t, err)

	now := time.Now().UTC()
	cooldown := now.Add(30 * 24 * time.Hour)
	_, updated, err := unbinds.Resolve(context.Background(), request.ID, UnbindResolution{
		Outcome:      models.UnbindRequestStateRejected,
		RespondedAt:  now,
		Relationship: pending,
		NextState:    models.RelationshipStateActive,
		RelationshipUpdates: map[string]interface{}{
			"rejection_count": 1,
			"cooldown_until":  cooldown,
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.RelationshipStateActive, updated.State)
	require.Equal(t, 1, updated.RejectionCount)
	require.NotNil(t, updated.CooldownUntil)

	stored, err := relationships.GetByID(context.Background(), relationship.ID)
	require.NoError(t, err)
	require.Equal(t, pending.Version+1, stored.Version)
}

func TestUnbindRepositoryGetOpenMissing(t *testing.T) {
	db := setupSupervisionTestDB(t)
	unbinds := NewUnbindRepository(db)

	_, err := unbinds.GetOpenByRelationship(context.Background(), 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
