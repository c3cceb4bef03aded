package config

import (
	"context"
	"strings"

	"github.com/sharmarakshya7/financial-rating-platform/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ownerColumn = "user_id"

// OwnerGuardPlugin scopes queries/updates/deletes on tables that carry a user_id column
// to the request's authenticated user, so one user can never read or mutate another
// user's datasets through the ORM.
//
// NOTE:
// - Raw SQL is not scoped.
// - Tables without user_id (financial_records) are scoped through dataset ids by the callers.
type OwnerGuardPlugin struct{}

func NewOwnerGuardPlugin() *OwnerGuardPlugin { return &OwnerGuardPlugin{} }

func (p *OwnerGuardPlugin) Name() string { return "owner_guard" }

func (p *OwnerGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("owner_guard:query", ownerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("owner_guard:row", ownerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("owner_guard:update", ownerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("owner_guard:delete", ownerGuardCallback); err != nil {
		return err
	}
	return nil
}

func ownerGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if skip, _ := appctx.GetBool(ctx, appctx.ContextKeySkipOwnerScope); skip {
		return
	}
	userID := userIdFromContext(ctx)
	if userID <= 0 {
		return
	}
	if db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField(ownerColumn) == nil {
		return
	}
	if whereHasOwner(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: ownerColumn},
				Value:  userID,
			},
		},
	})
}

func userIdFromContext(ctx context.Context) int {
	userID, _ := appctx.GetInt(ctx, appctx.ContextKeyUserId)
	return userID
}

func whereHasOwner(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasOwner(e) {
			return true
		}
	}
	return false
}

func exprHasOwner(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsOwner(v.Column)
	case clause.IN:
		return colIsOwner(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasOwner(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), ownerColumn)
	default:
		return false
	}
}

func colIsOwner(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, ownerColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, ownerColumn)
	default:
		return false
	}
}
