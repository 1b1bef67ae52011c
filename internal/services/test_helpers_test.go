package services

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/repositories"
)

const (
	testSecret   = "JBSWY3DPEHPK3PXP"
	testPassword = "Correct-Horse-9!"
)

var testEpoch = time.Unix(1_700_000_010, 0)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink keeps every emitted event type and fields
type recordingSink struct {
	mu     sync.Mutex
	types  []string
	fields []map[string]any
}

func (s *recordingSink) EmitEvent(_ context.Context, eventType string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, eventType)
	s.fields = append(s.fields, fields)
}

func (s *recordingSink) last() (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.types) == 0 {
		return "", nil
	}
	return s.types[len(s.types)-1], s.fields[len(s.fields)-1]
}

// MockActivityLogRepository implements ActivityLogRepository for testing
type MockActivityLogRepository struct {
	CreateFunc func(ctx context.Context, e *models.Event) error
	RecentFunc func(ctx context.Context, limit int) ([]models.Event, error)

	mu      sync.Mutex
	created []*models.Event
}

func (m *MockActivityLogRepository) Create(ctx context.Context, e *models.Event) error {
	m.mu.Lock()
	m.created = append(m.created, e)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, e)
	}
	return nil
}

func (m *MockActivityLogRepository) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, limit)
	}
	return nil, nil
}

// MockSES implements SESAPI for testing
type MockSES struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput) error

	mu   sync.Mutex
	sent []*ses.SendEmailInput
}

func (m *MockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	m.sent = append(m.sent, params)
	m.mu.Unlock()
	if m.SendEmailFunc != nil {
		if err := m.SendEmailFunc(ctx, params); err != nil {
			return nil, err
		}
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func (m *MockSES) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// mfaFixture wires a SecondFactorService over an in-memory repository
type mfaFixture struct {
	clock  *clock.Fake
	repo   *repositories.MemoryPrincipalRepository
	hasher *auth.BackupCodeHasher
	sink   *recordingSink
	svc    *SecondFactorService
	tokens *auth.TokenManager
}

func newMFAFixture(t *testing.T, enforced ...string) *mfaFixture {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	tm, err := auth.NewTOTPManager(key, "Rampart")
	require.NoError(t, err)

	hasher, err := auth.NewBackupCodeHasher([]byte("a-test-master-secret-of-some-length"))
	require.NoError(t, err)

	clk := clock.NewFake(testEpoch)
	f := &mfaFixture{
		clock:  clk,
		repo:   repositories.NewMemoryPrincipalRepository(),
		hasher: hasher,
		sink:   &recordingSink{},
		tokens: auth.NewTokenManager(key, 15*time.Minute, 5*time.Minute, clk),
	}
	f.svc = NewSecondFactorService(f.repo, auth.NewVerifier(clk), hasher, tm, f.sink, discardLogger(), SecondFactorConfig{
		EnforcedRoles:   enforced,
		BackupCodeCount: 10,
	})
	return f
}

// principal creates a principal with password testPassword
func (f *mfaFixture) principal(t *testing.T, email string, roles ...string) *models.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	p, err := f.repo.Create(context.Background(), &models.Principal{
		Email:        email,
		PasswordHash: string(hash),
		Roles:        roles,
	})
	require.NoError(t, err)
	return p
}

// enroll stores testSecret and the given backup codes for p
func (f *mfaFixture) enroll(t *testing.T, p *models.Principal, backupCodes ...string) {
	t.Helper()
	require.NoError(t, f.repo.SetSecondFactor(context.Background(), p.ID, testSecret, f.hasher.HashAll(backupCodes)))
}

func (f *mfaFixture) code(t *testing.T, offset int64) string {
	t.Helper()
	code, err := auth.GenerateCode(testSecret, f.clock.Now().Unix()/auth.StepSeconds+offset)
	require.NoError(t, err)
	return code
}
