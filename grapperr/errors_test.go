package grapperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap("op", CryptoFailure, nil))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap("kappa.GetKey", PreconditionViolation, cause)
	require := assert.New(t)
	require.ErrorIs(err, cause)
	require.Contains(err.Error(), "kappa.GetKey")
	require.Contains(err.Error(), "precondition_violation")
}

func TestRecoverableOnlyForCgkaStaleAndTransportFailure(t *testing.T) {
	stale := Wrap("cgka.Process", CgkaStale, errors.New("behind"))
	var ge *Error
	if errors.As(stale, &ge) {
		assert.True(t, ge.Recoverable())
	} else {
		t.Fatal("expected *Error")
	}

	failure := Wrap("cgka.Process", CgkaFailure, errors.New("bad sig"))
	if errors.As(failure, &ge) {
		assert.False(t, ge.Recoverable())
	} else {
		t.Fatal("expected *Error")
	}

	transport := Wrap("server.SendProposal", TransportFailure, errors.New("409"))
	if errors.As(transport, &ge) {
		assert.True(t, ge.Recoverable())
	} else {
		t.Fatal("expected *Error")
	}
}
