package authorization

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func subject(role string) string {
	return "role:" + role
}

// seedPolicies is idempotent; existing rules are left untouched.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Students act on their own records only; ownership is checked by the
		// HTTP layer.
		{subject(RoleStudent), ObjectInvoice, ActionInvoiceView},
		{subject(RoleStudent), ObjectPayment, ActionPaymentView},
		{subject(RoleStudent), ObjectPayment, ActionPaymentRecord},
		{subject(RoleStudent), ObjectAccess, ActionAccessCheck},
		{subject(RoleStudent), ObjectSemester, ActionSemesterView},

		{subject(RoleBursar), ObjectInvoice, ActionInvoiceView},
		{subject(RoleBursar), ObjectInvoice, ActionInvoiceGenerate},
		{subject(RoleBursar), ObjectInvoice, ActionInvoiceOverride},
		{subject(RoleBursar), ObjectPayment, ActionPaymentView},
		{subject(RoleBursar), ObjectPayment, ActionPaymentRecord},
		{subject(RoleBursar), ObjectPayment, ActionPaymentRecordFailed},
		{subject(RoleBursar), ObjectAccess, ActionAccessCheck},
		{subject(RoleBursar), ObjectStatistics, ActionStatisticsView},
		{subject(RoleBursar), ObjectSemester, ActionSemesterView},

		{subject(RoleAdmin), ObjectSemester, ActionSemesterSetCurrent},
		{subject(RoleAdmin), ObjectAuditLog, ActionAuditLogView},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// admin inherits every bursar permission.
	has, err := enforcer.HasGroupingPolicy(subject(RoleAdmin), subject(RoleBursar))
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy(subject(RoleAdmin), subject(RoleBursar)); err != nil {
			return err
		}
	}
	return nil
}
