package procedure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/auth"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccess struct {
	levels map[string]capability.Level
	err    error
	calls  int
}

func (f *fakeAccess) GetAccessLevel(ctx context.Context, ledgerID, userID string) (capability.Level, error) {
	f.calls++
	if f.err != nil {
		return capability.LevelNone, f.err
	}
	return f.levels[ledgerID+"/"+userID], nil
}

type input struct {
	Ledger string
	Bad    bool
}

func (i input) GetLedgerID() string { return i.Ledger }

func (i input) Validate() error {
	if i.Bad {
		return errors.New("bad input")
	}
	return nil
}

func session(userID string) *auth.Session {
	return &auth.Session{UserID: userID, Expires: time.Now().Add(time.Hour)}
}

func newEcho(access *fakeAccess, req capability.Requirement, called *bool) *Procedure[input, string] {
	b := NewBuilder(access, utils.DiscardLogger())
	return Scoped(b, "test.echo", req, func(ctx context.Context, call *Call, in input) (string, error) {
		*called = true
		return call.Level.String(), nil
	})
}

func TestScopedLevels(t *testing.T) {
	levels := []capability.Level{capability.LevelRead, capability.LevelRecord, capability.LevelWrite, capability.LevelAdmin}
	tests := []struct {
		req     capability.Requirement
		allowed map[capability.Level]bool
	}{
		{capability.RequireRead, map[capability.Level]bool{capability.LevelRead: true, capability.LevelRecord: true, capability.LevelWrite: true, capability.LevelAdmin: true}},
		{capability.RequireRecord, map[capability.Level]bool{capability.LevelRecord: true, capability.LevelWrite: true, capability.LevelAdmin: true}},
		{capability.RequireConfigure, map[capability.Level]bool{capability.LevelWrite: true, capability.LevelAdmin: true}},
		{capability.RequireManage, map[capability.Level]bool{capability.LevelAdmin: true}},
	}

	for _, tt := range tests {
		for _, level := range levels {
			t.Run(tt.req.String()+"/"+level.String(), func(t *testing.T) {
				access := &fakeAccess{levels: map[string]capability.Level{"L/u": level}}
				called := false
				p := newEcho(access, tt.req, &called)

				out, err := p.Call(context.Background(), session("u"), input{Ledger: "L"})
				if tt.allowed[level] {
					require.NoError(t, err)
					assert.True(t, called)
					assert.Equal(t, level.String(), out)
				} else {
					assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
					assert.False(t, called)
				}
			})
		}
	}
}

func TestNoAccessRecordIsForbidden(t *testing.T) {
	access := &fakeAccess{levels: map[string]capability.Level{"L/owner": capability.LevelAdmin}}
	called := false
	p := newEcho(access, capability.RequireRead, &called)

	_, err := p.Call(context.Background(), session("stranger"), input{Ledger: "L"})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	assert.False(t, called)
}

func TestGuardOrder(t *testing.T) {
	t.Run("ValidationBeforeAuthentication", func(t *testing.T) {
		access := &fakeAccess{}
		called := false
		p := newEcho(access, capability.RequireRead, &called)

		_, err := p.Call(context.Background(), nil, input{Ledger: "L", Bad: true})
		assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
		assert.Zero(t, access.calls)
	})

	t.Run("AuthenticationBeforeScope", func(t *testing.T) {
		access := &fakeAccess{err: errors.New("db down")}
		called := false
		p := newEcho(access, capability.RequireRead, &called)

		_, err := p.Call(context.Background(), nil, input{Ledger: "L"})
		assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
		assert.Zero(t, access.calls)
	})

	t.Run("ExpiredSession", func(t *testing.T) {
		access := &fakeAccess{}
		called := false
		p := newEcho(access, capability.RequireRead, &called)

		expired := &auth.Session{UserID: "u", Expires: time.Now().Add(-time.Minute)}
		_, err := p.Call(context.Background(), expired, input{Ledger: "L"})
		assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
	})

	t.Run("StoreFailureIsInternal", func(t *testing.T) {
		access := &fakeAccess{err: errors.New("db down")}
		called := false
		p := newEcho(access, capability.RequireRead, &called)

		_, err := p.Call(context.Background(), session("u"), input{Ledger: "L"})
		assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
		assert.False(t, called)
	})
}

func TestAuthedProcedure(t *testing.T) {
	b := NewBuilder(&fakeAccess{}, utils.DiscardLogger())
	p := Authed(b, "test.whoami", func(ctx context.Context, call *Call, in struct{}) (string, error) {
		return call.UserID(), nil
	})
	assert.Equal(t, "test.whoami", p.Name())

	out, err := p.Call(context.Background(), session("u1"), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "u1", out)

	_, err = p.Call(context.Background(), nil, struct{}{})
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
}

func TestHandlerErrorsAreTagged(t *testing.T) {
	b := NewBuilder(&fakeAccess{}, utils.DiscardLogger())
	p := Authed(b, "test.fail", func(ctx context.Context, call *Call, in struct{}) (int, error) {
		return 0, errors.New("unexpected")
	})

	_, err := p.Call(context.Background(), session("u"), struct{}{})
	var tagged *apperr.Error
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, apperr.CodeInternal, tagged.Code)
}
