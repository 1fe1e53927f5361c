package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededPolicy() *Policy {
	p := NewPolicy()
	p.PutActor(Actor{ID: "alice", Role: RolePatient})
	p.PutActor(Actor{ID: "bob", Role: RolePatient})
	p.PutActor(Actor{ID: "dr-reader", Role: RoleDoctor})
	p.PutActor(Actor{ID: "dr-writer", Role: RoleDoctor})
	p.PutActor(Actor{ID: "root", Role: RoleAdmin})
	p.PutGrant(Grant{PatientID: "alice", DoctorID: "dr-reader", Scope: ScopeRead, GrantedAt: time.Now()})
	p.PutGrant(Grant{PatientID: "alice", DoctorID: "dr-writer", Scope: ScopeWrite, GrantedAt: time.Now()})
	return p
}

func TestPatientReadsOnlyOwnRecords(t *testing.T) {
	p := seededPolicy()
	require.NoError(t, p.Authorize("alice", "alice", OpRead))
	require.ErrorIs(t, p.Authorize("alice", "bob", OpRead), ErrAccessDenied)
	require.ErrorIs(t, p.Authorize("alice", "alice", OpCreate), ErrAccessDenied)
	require.NoError(t, p.Authorize("alice", "alice", OpGrant))
	require.ErrorIs(t, p.Authorize("alice", "bob", OpGrant), ErrAccessDenied)
}

func TestDoctorNeedsGrant(t *testing.T) {
	p := seededPolicy()
	require.NoError(t, p.Authorize("dr-reader", "alice", OpRead))
	require.ErrorIs(t, p.Authorize("dr-reader", "alice", OpCreate), ErrAccessDenied)
	require.NoError(t, p.Authorize("dr-writer", "alice", OpCreate))
	require.NoError(t, p.Authorize("dr-writer", "alice", OpAmend))
	require.ErrorIs(t, p.Authorize("dr-writer", "bob", OpRead), ErrAccessDenied)
	require.ErrorIs(t, p.Authorize("dr-writer", "alice", OpGrant), ErrAccessDenied)
}

func TestRevokeEndsAccess(t *testing.T) {
	p := seededPolicy()
	require.True(t, p.Revoke("alice", "dr-writer", time.Now()))
	require.False(t, p.Revoke("alice", "dr-writer", time.Now()))
	require.ErrorIs(t, p.Authorize("dr-writer", "alice", OpRead), ErrAccessDenied)

	grants := p.Grants("alice")
	require.Len(t, grants, 2)
	assert.False(t, grants[1].Active)
	assert.NotNil(t, grants[1].RevokedAt)

	p.PutGrant(Grant{PatientID: "alice", DoctorID: "dr-writer", Scope: ScopeRead})
	require.NoError(t, p.Authorize("dr-writer", "alice", OpRead))
}

func TestAdminSeesAggregatesOnly(t *testing.T) {
	p := seededPolicy()
	require.NoError(t, p.Authorize("root", "", OpAnalytics))
	require.NoError(t, p.Authorize("root", "", OpAudit))
	require.ErrorIs(t, p.Authorize("root", "alice", OpRead), ErrAccessDenied)
}

func TestUnknownActorDeniedLikeAnyone(t *testing.T) {
	p := seededPolicy()
	unknown := p.Authorize("ghost", "alice", OpRead)
	stranger := p.Authorize("bob", "alice", OpRead)
	require.ErrorIs(t, unknown, ErrAccessDenied)
	require.ErrorIs(t, stranger, ErrAccessDenied)
	assert.NotContains(t, unknown.Error(), "not found")
}

func TestCountByRole(t *testing.T) {
	p := seededPolicy()
	counts := p.CountByRole()
	assert.Equal(t, 2, counts[RolePatient])
	assert.Equal(t, 2, counts[RoleDoctor])
	assert.True(t, p.HasAdmin())
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("s3cret")
	require.NoError(t, err)
	a := Actor{ID: "alice", PasswordHash: h}
	require.NoError(t, a.CheckPassword("s3cret"))
	require.ErrorIs(t, a.CheckPassword("wrong"), ErrBadCredentials)
	assert.Empty(t, a.Public().PasswordHash)

	_, err = HashPassword("")
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	r, err := ParseRole(" Doctor ")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, r)
	_, err = ParseRole("nurse")
	require.Error(t, err)

	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeRead, s)
	_, err = ParseScope("delete")
	require.Error(t, err)
}

func TestPatientsOfFollowsActiveGrants(t *testing.T) {
	p := seededPolicy()
	p.PutGrant(Grant{PatientID: "bob", DoctorID: "dr-writer", Scope: ScopeRead})
	assert.Equal(t, []string{"alice", "bob"}, p.PatientsOf("dr-writer"))
	assert.Equal(t, []string{"alice"}, p.PatientsOf("dr-reader"))

	p.Revoke("alice", "dr-writer", time.Now())
	assert.Equal(t, []string{"bob"}, p.PatientsOf("dr-writer"))
	assert.Empty(t, p.PatientsOf("root"))
}
