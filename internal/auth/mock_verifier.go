package auth

import "github.com/stretchr/testify/mock"

type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(token string) (Identity, error) {
	args := m.Called(token)
	return args.Get(0).(Identity), args.Error(1)
}
