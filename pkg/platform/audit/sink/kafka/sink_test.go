package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
)

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestSink_TopicPerCategory(t *testing.T) {
	s := &Sink{prefix: "tg.audit"}

	assert.Equal(t, "tg.audit.security", s.Topic(audit.ActionLoginFailed.Category()))
	assert.Equal(t, "tg.audit.compliance", s.Topic(audit.ActionRoleChanged.Category()))
	assert.Equal(t, "tg.audit.operations", s.Topic(audit.ActionTaskAssigned.Category()))
	assert.Len(t, s.Topics(), 3)
}

func TestSink_Encode(t *testing.T) {
	s := &Sink{prefix: "tg.audit"}
	actor := id.UserID(uuid.New())
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := audit.Record{
		ID:         audit.NewRecordID(now),
		ActorID:    actor,
		Action:     audit.ActionTaskAssigned,
		EntityType: audit.EntityTask,
		EntityID:   "t-1",
		Metadata:   map[string]string{"assignee_id": "u-2"},
		Timestamp:  now,
		Hash:       "abc",
	}

	kr, err := s.encode(rec)
	require.NoError(t, err)

	assert.Equal(t, "tg.audit.operations", kr.Topic)
	assert.Equal(t, "task:t-1", string(kr.Key))

	var msg message
	require.NoError(t, json.Unmarshal(kr.Value, &msg))
	assert.Equal(t, rec.ID, msg.ID)
	assert.Equal(t, actor.String(), msg.ActorID)
	assert.Equal(t, "operations", msg.Category)
	assert.Equal(t, "u-2", msg.Metadata["assignee_id"])
	assert.True(t, now.Equal(msg.Timestamp))
}

func TestSink_EncodeDetachedActor(t *testing.T) {
	s := &Sink{prefix: "tg.audit"}
	rec := audit.Record{
		ID:            "01HX",
		Action:        audit.ActionLogin,
		EntityType:    audit.EntityUser,
		ActorDetached: true,
	}

	kr, err := s.encode(rec)
	require.NoError(t, err)

	var msg message
	require.NoError(t, json.Unmarshal(kr.Value, &msg))
	assert.Empty(t, msg.ActorID)
	assert.True(t, msg.ActorDetached)
}
