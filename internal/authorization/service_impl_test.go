package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/bursar/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(dbtest.Open(t))
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoleMatrix(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{RoleStudent, ObjectInvoice, ActionInvoiceView, true},
		{RoleStudent, ObjectPayment, ActionPaymentRecord, true},
		{RoleStudent, ObjectInvoice, ActionInvoiceGenerate, false},
		{RoleStudent, ObjectStatistics, ActionStatisticsView, false},
		{RoleBursar, ObjectInvoice, ActionInvoiceGenerate, true},
		{RoleBursar, ObjectPayment, ActionPaymentRecordFailed, true},
		{RoleBursar, ObjectSemester, ActionSemesterSetCurrent, false},
		{RoleBursar, ObjectAuditLog, ActionAuditLogView, false},
		{RoleAdmin, ObjectInvoice, ActionInvoiceOverride, true},
		{RoleAdmin, ObjectSemester, ActionSemesterSetCurrent, true},
		{"ADMIN", ObjectAuditLog, ActionAuditLogView, true},
		{"registrar", ObjectInvoice, ActionInvoiceView, false},
	}
	for _, tc := range cases {
		err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s", tc.role, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s", tc.role, tc.action)
		}
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, " ", ObjectInvoice, ActionInvoiceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, RoleAdmin, "", ActionInvoiceView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, RoleAdmin, ObjectInvoice, ""), ErrInvalidAction)
}

func TestSeedPoliciesIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	_, err := NewEnforcer(db)
	require.NoError(t, err)

	var before int64
	require.NoError(t, db.Table("casbin_rule").Count(&before).Error)

	_, err = NewEnforcer(db)
	require.NoError(t, err)

	var after int64
	require.NoError(t, db.Table("casbin_rule").Count(&after).Error)
	assert.Equal(t, before, after)
}
