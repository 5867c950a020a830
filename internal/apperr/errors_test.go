package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("resolve: %w", ErrUnauthorized), CodeUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("require edit: %w", ErrForbidden), CodeForbidden, http.StatusForbidden},
		{fmt.Errorf("get document: %w", ErrNotFound), CodeNotFound, http.StatusNotFound},
		{ErrInvalid, CodeInvalid, http.StatusBadRequest},
		{ErrConflict, CodeConflict, http.StatusConflict},
		{errors.New("connection reset"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, Code(tc.err), tc.err.Error())
		assert.Equal(t, tc.status, HTTPStatus(tc.err), tc.err.Error())
	}
	assert.False(t, IsClientError(errors.New("boom")))
	assert.True(t, IsClientError(ErrForbidden))
}
