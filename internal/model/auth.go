package model

// LoginRequest is the payload for signing the agent in against the exam API.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=1,max=72"`
}

// TokenResponse is the exam API's login answer.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// MinFaceImages is the fewest images the exam API accepts for registration.
const MinFaceImages = 3

// RegisterFaceRequest carries base64 images (optionally data URLs) of the
// candidate's face taken from several angles.
type RegisterFaceRequest struct {
	Images []string `json:"images" binding:"required,min=3,max=10,dive,required"`
}

// Identity is what the agent knows about the signed-in candidate.
type Identity struct {
	Subject   string `json:"subject"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
	Profile   string `json:"profile"`
}
