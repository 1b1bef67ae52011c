package policy_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/matcher"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/policy"
)

func newAntispam(f *fixture) *policy.Antispam {
	return policy.NewAntispam(policy.AntispamConfig{
		Limits: policy.Limits{
			Threshold:    10,
			Window:       time.Hour,
			LockDuration: time.Hour,
		},
		AllowList:  matcher.ParseRules(""),
		MinSeconds: 8 * time.Second,
		MaxLinks:   2,
		Rules:      inspector.DefaultRuleSets().Spam,
	}, f.deps)
}

func (f *fixture) comment(content string) models.RequestContext {
	return models.RequestContext{
		Subject: "203.0.113.9",
		Method:  "POST",
		Path:    "/comments",
		Comment: &models.Comment{
			Content:     content,
			RenderedAt:  f.clock.Now().Add(-30 * time.Second),
			PostID:      "42",
			CommentType: "comment",
		},
	}
}

func TestCountLinks(t *testing.T) {
	assert.Equal(t, 0, policy.CountLinks("no links here"))
	assert.Equal(t, 2, policy.CountLinks("see http://a.example and HTTPS://b.example"))
	assert.Equal(t, 2, policy.CountLinks(`<a href="/x">x</a> < A title="y">`))
}

func TestAntispam_Pass(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)

	d := p.Evaluate(context.Background(), f.comment("Great article, thanks!"))
	assert.True(t, d.Allowed())
	assert.Equal(t, 1, f.sink.count(models.EventAntispamPass))
}

func TestAntispam_Honeypot(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)

	rc := f.comment("hello")
	rc.Comment.Honeypot = "bot filled me"

	d := p.Evaluate(context.Background(), rc)
	assert.Equal(t, http.StatusForbidden, d.HTTPStatus)
	assert.Equal(t, models.ReasonBlocked, d.Reason)

	ev, ok := f.sink.last(models.EventAntispamBlock)
	require.True(t, ok)
	assert.Equal(t, "honeypot", ev.Fields["reason"])
}

func TestAntispam_TooFast(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)

	rc := f.comment("hello")
	rc.Comment.RenderedAt = f.clock.Now().Add(-3 * time.Second)

	d := p.Evaluate(context.Background(), rc)
	assert.Equal(t, http.StatusTooManyRequests, d.HTTPStatus)
	assert.Equal(t, 8*time.Second, d.RetryAfter)

	ev, ok := f.sink.last(models.EventAntispamBlock)
	require.True(t, ok)
	assert.Equal(t, "min_seconds", ev.Fields["reason"])
	assert.Equal(t, int64(3), ev.Fields["elapsed"])
}

func TestAntispam_MissingTimestamp(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)

	rc := f.comment("hello")
	rc.Comment.RenderedAt = time.Time{}

	d := p.Evaluate(context.Background(), rc)
	assert.Equal(t, http.StatusTooManyRequests, d.HTTPStatus)
}

func TestAntispam_TooManyLinks(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)

	d := p.Evaluate(context.Background(), f.comment("http://a.example http://b.example http://c.example"))
	assert.Equal(t, http.StatusForbidden, d.HTTPStatus)

	ev, ok := f.sink.last(models.EventAntispamBlock)
	require.True(t, ok)
	assert.Equal(t, "links", ev.Fields["reason"])
	assert.Equal(t, 3, ev.Fields["links"])
}

func TestAntispam_ScoreAccumulatesToLock(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)
	ctx := context.Background()

	// pharma(2) + gambling(1) + scam(2) = 5 per comment
	spam := "cheap viagra at the casino, free money"
	d := p.Evaluate(ctx, f.comment(spam))
	require.True(t, d.Allowed())
	assert.Equal(t, 5, d.Count)

	d = p.Evaluate(ctx, f.comment(spam))
	require.True(t, d.Allowed())
	assert.Equal(t, 10, d.Count)

	d = p.Evaluate(ctx, f.comment(spam))
	assert.Equal(t, models.ReasonLocked, d.Reason)
	assert.Equal(t, 1, f.sink.count(models.EventLockout))

	// even a clean comment is now rejected
	d = p.Evaluate(ctx, f.comment("hello"))
	assert.False(t, d.Allowed())
}

func TestAntispam_RepeatedBlocksLock(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)
	ctx := context.Background()

	rc := f.comment("hello")
	rc.Comment.Honeypot = "x"
	for i := 0; i < 10; i++ {
		assert.Equal(t, models.ReasonBlocked, p.Evaluate(ctx, rc).Reason)
	}
	assert.Equal(t, models.ReasonLocked, p.Evaluate(ctx, rc).Reason)

	// the locking submission reports lockout only
	assert.Equal(t, 10, f.sink.count(models.EventAntispamBlock))
	assert.Equal(t, 1, f.sink.count(models.EventLockout))
	types := f.sink.types()
	assert.Equal(t, models.EventLockout, types[len(types)-1])
	assert.Len(t, types, 11)
}

func TestAntispam_BlockStoreErrorIsFolded(t *testing.T) {
	f := newFixture()
	f.store.failIncrement = true
	p := newAntispam(f)

	rc := f.comment("hello")
	rc.Comment.Honeypot = "x"
	assert.Equal(t, models.ReasonBlocked, p.Evaluate(context.Background(), rc).Reason)

	assert.Equal(t, []string{models.EventAntispamBlock}, f.sink.types())
	ev, _ := f.sink.last(models.EventAntispamBlock)
	assert.Equal(t, errStoreDown.Error(), ev.Fields["store_error"])
}

func TestAntispam_SkipsNonCommentsAndPrivileged(t *testing.T) {
	f := newFixture()
	p := newAntispam(f)

	assert.True(t, p.Evaluate(context.Background(), models.RequestContext{Subject: "203.0.113.9"}).Allowed())

	rc := f.comment("hello")
	rc.Comment.Honeypot = "x"
	rc.Privileged = true
	assert.True(t, p.Evaluate(context.Background(), rc).Allowed())
	assert.Empty(t, f.sink.types())
}
