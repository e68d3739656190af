package repository_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arohealth/hospital-auth/internal/model"
	"github.com/arohealth/hospital-auth/internal/repository"
	"github.com/arohealth/hospital-auth/internal/testutil"
)

func TestAuditInsertAndQuery(t *testing.T) {
	r := repository.NewAuditRepo(testutil.OpenDB(t))
	uid := uint64(1)

	require.NoError(t, r.Insert(t.Context(), model.AuditEvent{
		UserID: &uid, Action: model.AuditUserLogin, Detail: "pat@example.com",
	}))
	require.NoError(t, r.Insert(t.Context(), model.AuditEvent{
		UserID: &uid, Action: model.AuditUserLogout, Detail: "logout",
	}))
	// Failed logins may not resolve to an account; user_id stays null.
	require.NoError(t, r.Insert(t.Context(), model.AuditEvent{
		Action: model.AuditLoginFailed, Detail: "pat@example.com",
	}))
	require.NoError(t, r.Insert(t.Context(), model.AuditEvent{
		Action: model.AuditLoginFailed, Detail: "pat@example.com",
	}))

	n, err := r.CountByActionDetail(t.Context(), model.AuditLoginFailed, "pat@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := r.ListByUser(t.Context(), uid, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, model.AuditUserLogout, events[0].Action)
	assert.Equal(t, model.AuditUserLogin, events[1].Action)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, uid, *events[0].UserID)
}
