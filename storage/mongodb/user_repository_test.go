package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"go.aldar.dev/ariagate/domain"
)

func TestEmailIndexIgnoresEmptyEmails(t *testing.T) {
	model := emailIndexModel()

	require.NotNil(t, model.Options.Unique)
	assert.True(t, *model.Options.Unique)

	// Without the partial filter, two users whose tokens carry no email
	// claim would collide on email == "" and the second login would fail.
	filter, ok := model.Options.PartialFilterExpression.(bson.M)
	require.True(t, ok)
	assert.Equal(t, bson.M{"email": bson.M{"$gt": ""}}, filter)
}

func TestUpsertUserUpdateOmitsEmptyEmail(t *testing.T) {
	now := time.Now().UTC()

	update := upsertUserUpdate(&domain.User{ID: "u1", DisplayName: "User One"}, now)
	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	assert.NotContains(t, set, "email")
	assert.Equal(t, "User One", set["display_name"])

	update = upsertUserUpdate(&domain.User{ID: "u1", Email: "user@example.com"}, now)
	set, ok = update["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "user@example.com", set["email"])
}
