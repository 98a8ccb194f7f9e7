package httpserver

import "github.com/Skotchmaster/authcore/internal/models"

const TokenTypeBearer = "bearer"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type TokenDescriptor struct {
	Type         string `json:"type"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// AuthenticationPayload is returned by register, login and refresh.
type AuthenticationPayload struct {
	User    *models.User    `json:"user"`
	Payload TokenDescriptor `json:"payload"`
}

type DataResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(data any) DataResponse {
	return DataResponse{Status: "success", Data: data}
}
