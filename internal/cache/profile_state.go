package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/models"
)

const profileStateCacheTTL = 5 * time.Minute

// UserProfileState 用户资料快照，供鉴权中间件避免每次请求查库
type UserProfileState struct {
	UserID     uint   `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	IsSuper    bool   `json:"is_super"`
	IsVerified bool   `json:"is_verified"`
	UpdatedAt  int64  `json:"updated_at"`
}

func userProfileStateKey(userID uint) string {
	return fmt.Sprintf("profile:user:%d", userID)
}

// BuildUserProfileState 从用户模型构建资料快照
func BuildUserProfileState(user *models.User) *UserProfileState {
	if user == nil {
		return nil
	}
	return &UserProfileState{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       user.Role,
		Status:     user.Status,
		IsSuper:    user.IsSuper,
		IsVerified: user.IsVerified,
		UpdatedAt:  time.Now().Unix(),
	}
}

// GetUserProfileState 获取用户资料快照
func GetUserProfileState(ctx context.Context, userID uint) (*UserProfileState, bool, error) {
	if userID == 0 {
		return nil, false, nil
	}
	var state UserProfileState
	hit, err := GetJSON(ctx, userProfileStateKey(userID), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetUserProfileState 写入用户资料快照
func SetUserProfileState(ctx context.Context, state *UserProfileState) error {
	if state == nil || state.UserID == 0 {
		return nil
	}
	return SetJSON(ctx, userProfileStateKey(state.UserID), state, profileStateCacheTTL)
}
