package auth

import (
	"github.com/converge-im/realtime/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(tokenString string) (types.User, error) {
	args := m.Called(tokenString)
	return args.Get(0).(types.User), args.Error(1)
}
