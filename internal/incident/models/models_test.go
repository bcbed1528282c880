package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, SeverityHigh, DefaultSeverity(VerificationTamperDetected))
	assert.Equal(t, SeverityHigh, DefaultSeverity(VerificationDuplicateHash))
	assert.Equal(t, SeverityMedium, DefaultSeverity(VerificationSuspicious))
	assert.True(t, DefaultContainment(VerificationTamperDetected))
	assert.False(t, DefaultContainment(VerificationNotLogged))
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := &Incident{AffectedSubjectIDs: []string{"a"}, AcknowledgedAt: &now}
	cp := orig.Clone()
	cp.AffectedSubjectIDs[0] = "b"
	*cp.AcknowledgedAt = now.Add(time.Hour)

	assert.Equal(t, "a", orig.AffectedSubjectIDs[0])
	assert.Equal(t, now, *orig.AcknowledgedAt)
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusNew.IsValid())
	assert.False(t, Status("reopened").IsValid())
	assert.False(t, (&Incident{Status: StatusResolved}).IsOpen())
	assert.True(t, (&Incident{Status: StatusAcknowledged}).IsOpen())
}
