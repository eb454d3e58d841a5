package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/dbtest"
	"github.com/smallbiznis/bursar/internal/semester/domain"
	"github.com/smallbiznis/bursar/internal/semester/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetCurrentMovesTheMarker(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fx := dbtest.NewFixture(t, db, node)

	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	fall := fx.Semester("2024-1", start, true)
	spring := fx.Semester("2024-2", start.AddDate(0, 5, 0), false)

	svc := NewService(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})
	ctx := context.Background()

	current, err := svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, fall, current.ID)

	updated, err := svc.SetCurrent(ctx, spring)
	require.NoError(t, err)
	assert.True(t, updated.IsCurrent)
	assert.Equal(t, int64(1), fx.Count("semesters", "is_current = ?", true))

	current, err = svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, spring, current.ID)
}

func TestSetCurrentUnknownSemesterRollsBack(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fx := dbtest.NewFixture(t, db, node)
	fall := fx.Semester("2024-1", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), true)

	svc := NewService(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	_, err = svc.SetCurrent(context.Background(), node.Generate())
	require.ErrorIs(t, err, domain.ErrNotFound)

	current, err := svc.GetCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fall, current.ID, "the previous current semester must survive a failed switch")
}

func TestGetRejectsInvalidID(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	_, err := svc.Get(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetCurrent(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoCurrent)
}

type failingAudit struct {
	auditdomain.Service
}

func (failingAudit) AuditLog(context.Context, string, string, *string, map[string]any) error {
	return errors.New("audit store unavailable")
}

func TestSetCurrentLogsAuditFailure(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fx := dbtest.NewFixture(t, db, node)
	spring := fx.Semester("2024-2", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), false)

	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(Params{DB: db, Log: zap.New(core), Repo: repository.Provide(), AuditSvc: failingAudit{}})

	updated, err := svc.SetCurrent(context.Background(), spring)
	require.NoError(t, err)
	assert.True(t, updated.IsCurrent)

	entries := logs.FilterMessage("audit log failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, auditdomain.ActionSemesterCurrentSet, entries[0].ContextMap()["action"])
}
