package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	user, err := CreateUser("Jonas Kairys", "jonas@example.com", "correct-horse")
	require.NoError(t, err)

	assert.Equal(t, "Jonas Kairys", user.Name)
	assert.Equal(t, "jonas@example.com", user.Email)
	assert.Equal(t, ROLE_USER, user.Role)
	assert.Equal(t, STATUS_ACTIVE, user.Status)

	// The password is stored hashed, never verbatim.
	assert.NotEqual(t, "correct-horse", user.Password)
	assert.True(t, user.CheckPassword("correct-horse"))
	assert.False(t, user.CheckPassword("wrong-horse"))
}

func TestUserValidate(t *testing.T) {
	user, err := CreateUser("Jonas Kairys", "jonas@example.com", "correct-horse")
	require.NoError(t, err)
	assert.NoError(t, user.Validate())

	user.Email = "not-an-email"
	assert.Error(t, user.Validate())

	user.Email = "jonas@example.com"
	user.Role = "superuser"
	assert.Error(t, user.Validate())
}

func TestHashPasswordProducesUniqueSalts(t *testing.T) {
	first, err := HashPassword("correct-horse")
	require.NoError(t, err)
	second, err := HashPassword("correct-horse")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
