package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
)

//go:embed model.conf
var casbinModelContent string

//go:embed policy.csv
var casbinPolicyContent string

// Casbin objects and actions used by route guards.
const (
	ObjectOverview = "overview"
	ObjectRegion   = "region"
	ObjectFiling   = "filing"
	ObjectProfile  = "profile"

	ActionRead   = "read"
	ActionUpdate = "update"
)

// InitEnforcer creates a synced enforcer with the embedded role model and policy table.
func InitEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(casbinPolicyContent))
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}
	return enforcer, nil
}
