package sqlutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNullRoundTrips(t *testing.T) {
	assert.Nil(t, FromSqlStringPtr(ToSqlString(nil)))
	s := "ABC123"
	assert.Equal(t, &s, FromSqlStringPtr(ToSqlString(&s)))

	assert.Nil(t, FromNullUUID(ToNullUUID(nil)))
	id := uuid.New()
	assert.Equal(t, id, *FromNullUUID(ToNullUUID(&id)))

	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))
	now := time.Now()
	assert.True(t, now.Equal(*FromSqlTime(ToSqlTime(&now))))
}
