// Package usermgr owns user persistence and the sync with the external
// inventory system. The enrolment engine never saves a User directly once a
// membership is touched; it goes through Manager.Update so the inventory
// identity stays consistent with the member's status.
package usermgr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/models"
	cfgpkg "github.com/lendlib/membership/pkg/config"
	"github.com/lendlib/membership/pkg/logctx"
)

type SyncFlag string

const (
	// SyncInventory propagates the user's state to the inventory system.
	SyncInventory SyncFlag = "inventory"
)

type Manager interface {
	// Update persists the user inside the caller's transaction (or the root
	// connection when tx is nil) and schedules the requested sync flags.
	// Sync failures are logged, never returned: external propagation must not
	// roll back a committed state change.
	Update(ctx context.Context, tx *gorm.DB, user *models.User, flags ...SyncFlag) error
	// AddToProject registers the user with an external program (used by the
	// stroom subsidy scheme). Best-effort.
	AddToProject(ctx context.Context, user *models.User, project string)
}

type manager struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	syncURL string
	http    *http.Client
}

func New(db *gorm.DB, log *zap.SugaredLogger, cfg *cfgpkg.Config) Manager {
	return &manager{
		db:      db,
		log:     log,
		syncURL: cfg.Inventory.SyncURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *manager) Update(ctx context.Context, tx *gorm.DB, user *models.User, flags ...SyncFlag) error {
	conn := tx
	if conn == nil {
		conn = m.db
	}
	if err := conn.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}
	for _, f := range flags {
		if f == SyncInventory {
			go m.syncInventory(context.WithoutCancel(ctx), user)
		}
	}
	return nil
}

func (m *manager) syncInventory(ctx context.Context, user *models.User) {
	if m.syncURL == "" {
		return
	}
	payload := map[string]any{
		"user_id":             user.ID,
		"state":               user.State,
		"firstname":           user.Firstname,
		"lastname":            user.Lastname,
		"email":               user.Email,
		"membership_end_date": user.MembershipEndDate,
	}
	if err := m.post(ctx, m.syncURL+"/users", payload); err != nil {
		logctx.FromCtx(ctx, m.log).Errorf("inventory sync failed for user %s: %v", user.ID, err)
		return
	}
	now := time.Now()
	if err := m.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", user.ID).
		Update("last_sync_date", &now).Error; err != nil {
		logctx.FromCtx(ctx, m.log).Errorf("failed to stamp last_sync_date for user %s: %v", user.ID, err)
	}
}

func (m *manager) AddToProject(ctx context.Context, user *models.User, project string) {
	if m.syncURL == "" {
		return
	}
	payload := map[string]any{"user_id": user.ID, "project": project}
	if err := m.post(ctx, m.syncURL+"/projects", payload); err != nil {
		logctx.FromCtx(ctx, m.log).Errorf("add user %s to project %s failed: %v", user.ID, project, err)
	}
}

func (m *manager) post(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
)
