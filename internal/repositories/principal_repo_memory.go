package repositories

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/BradenHooton/rampart/internal/models"
)

// MemoryPrincipalRepository keeps principals in process memory. It backs
// development setups without a database and tests.
type MemoryPrincipalRepository struct {
	mu      sync.Mutex
	byID    map[string]*models.Principal
	byEmail map[string]string
}

// NewMemoryPrincipalRepository creates an empty repository
func NewMemoryPrincipalRepository() *MemoryPrincipalRepository {
	return &MemoryPrincipalRepository{
		byID:    make(map[string]*models.Principal),
		byEmail: make(map[string]string),
	}
}

func clonePrincipal(p *models.Principal) *models.Principal {
	cp := *p
	cp.Roles = append([]string(nil), p.Roles...)
	cp.BackupCodeHashes = append([]string(nil), p.BackupCodeHashes...)
	return &cp
}

func (r *MemoryPrincipalRepository) GetByID(_ context.Context, id string) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *MemoryPrincipalRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	r.mu.Lock()
	id, ok := r.byEmail[strings.ToLower(email)]
	r.mu.Unlock()
	if !ok {
		return nil, models.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryPrincipalRepository) Create(_ context.Context, p *models.Principal) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(p.Email)
	if _, dup := r.byEmail[email]; dup {
		return nil, models.ErrConflict
	}

	cp := clonePrincipal(p)
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	cp.Email = email
	r.byID[cp.ID] = cp
	r.byEmail[email] = cp.ID
	return clonePrincipal(cp), nil
}

func (r *MemoryPrincipalRepository) SetSecondFactor(_ context.Context, id, secret string, backupHashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	p.TOTPSecret = secret
	p.BackupCodeHashes = append([]string(nil), backupHashes...)
	p.LastTOTPStep = 0
	return nil
}

func (r *MemoryPrincipalRepository) AdvanceTOTPStep(_ context.Context, id string, step int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if step <= p.LastTOTPStep {
		return false, nil
	}
	p.LastTOTPStep = step
	return true, nil
}

func (r *MemoryPrincipalRepository) ConsumeBackupCode(_ context.Context, id, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return false, models.ErrNotFound
	}
	for i, h := range p.BackupCodeHashes {
		if h == hash {
			p.BackupCodeHashes = append(p.BackupCodeHashes[:i:i], p.BackupCodeHashes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryPrincipalRepository) ReplaceBackupCodes(_ context.Context, id string, hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	p.BackupCodeHashes = append([]string(nil), hashes...)
	return nil
}
