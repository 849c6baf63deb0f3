package upstream

import "time"

// Subscription tiers
const (
	TierFree  = "free"
	TierBasic = "basic"
)

// Insight priorities
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Envelope is the wrapper every backend response uses.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// User is the server-owned profile. The client holds a read-mostly copy.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Tier          string    `json:"tier"`
	IsActive      bool      `json:"isActive"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SocialAccount is a linked platform account.
type SocialAccount struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId,omitempty"`
	Platform    string     `json:"platform"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName,omitempty"`
	ProfileURL  string     `json:"profileUrl,omitempty"`
	IsActive    bool       `json:"isActive"`
	LastSyncAt  *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// AccountMetrics is one snapshot for a social account. Lists are newest first.
type AccountMetrics struct {
	ID              string    `json:"id"`
	SocialAccountID string    `json:"socialAccountId"`
	Followers       int64     `json:"followers"`
	Following       int64     `json:"following"`
	Posts           int64     `json:"posts"`
	EngagementRate  float64   `json:"engagementRate"`
	AvgLikes        float64   `json:"avgLikes"`
	AvgComments     float64   `json:"avgComments"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AIInsight is a generated recommendation. IsNew is a display hint assigned
// by the client; UserRating is the only field the user can change.
type AIInsight struct {
	ID              string    `json:"id"`
	SocialAccountID string    `json:"socialAccountId"`
	Category        string    `json:"category"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Recommendation  string    `json:"recommendation,omitempty"`
	Priority        string    `json:"priority"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"createdAt"`
	IsNew           bool      `json:"isNew"`
	UserRating      *bool     `json:"userRating"`
}

// Usage reports tier limits for connected accounts.
type Usage struct {
	CurrentAccounts int    `json:"currentAccounts"`
	MaxAccounts     int    `json:"maxAccounts"`
	Tier            string `json:"tier"`
	CanAddMore      bool   `json:"canAddMore"`
}

// AccountAnalytics is the combined metrics + insight generation result.
type AccountAnalytics struct {
	Metrics  []AccountMetrics       `json:"metrics"`
	Insights []AIInsight            `json:"insights"`
	Summary  map[string]interface{} `json:"summary,omitempty"`
}

// Dashboard is the aggregate home view payload.
type Dashboard struct {
	Accounts      []SocialAccount  `json:"accounts"`
	RecentMetrics []AccountMetrics `json:"recentMetrics"`
	Insights      []AIInsight      `json:"insights"`
	Usage         *Usage           `json:"usage,omitempty"`
}

// ===== Requests =====

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type CreateSocialAccountRequest struct {
	Platform    string `json:"platform"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"`
}

type UpdateSocialAccountRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	ProfileURL  *string `json:"profileUrl,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}
