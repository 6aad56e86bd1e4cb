package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSetMergeRetainsRefreshToken(t *testing.T) {
	current := TokenSet{AccessToken: "old", RefreshToken: "refresh-1", TokenType: "Bearer", Scope: "openid"}

	merged := current.Merge(TokenSet{AccessToken: "new", ExpiresIn: 3599})
	assert.Equal(t, "new", merged.AccessToken)
	assert.Equal(t, "refresh-1", merged.RefreshToken)
	assert.Equal(t, "Bearer", merged.TokenType)
	assert.Equal(t, 3599, merged.ExpiresIn)

	rotated := current.Merge(TokenSet{AccessToken: "new", RefreshToken: "refresh-2"})
	assert.Equal(t, "refresh-2", rotated.RefreshToken)
}

func TestChatCounterpart(t *testing.T) {
	c := Chat{Participants: []string{"u_buyer", "u_seller"}}
	assert.Equal(t, "u_seller", c.Counterpart("u_buyer", "seller"))
	assert.Equal(t, "u_buyer", c.Counterpart("u_seller", "seller"))
	assert.Equal(t, "seller", Chat{Participants: []string{"u_buyer"}}.Counterpart("u_buyer", "seller"))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, ProductSold.Valid())
	assert.False(t, ProductStatus("gone").Valid())
	assert.True(t, RequestDeclined.Valid())
	assert.False(t, RequestStatus("").Valid())
}
