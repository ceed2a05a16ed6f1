package models

import "time"

// Session is the result of a completed second factor.
type Session struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
	Principal *Principal
}

// RegisterInput carries self-registration fields after transport parsing.
type RegisterInput struct {
	Identity    string
	DisplayName string
	Password    string
	Role        string
}
